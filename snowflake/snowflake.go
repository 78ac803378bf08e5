// Package snowflake 提供审计记录使用的雪花算法ID生成器
package snowflake

import (
	"errors"
	"sync"
	"time"
)

const (
	// 起始时间戳 (2024-01-01 00:00:00 UTC)
	epoch int64 = 1704067200000

	workerIDBits     = 5
	datacenterIDBits = 5
	sequenceBits     = 12

	maxWorkerID     = -1 ^ (-1 << workerIDBits)     // 31
	maxDatacenterID = -1 ^ (-1 << datacenterIDBits) // 31
	maxSequence     = -1 ^ (-1 << sequenceBits)     // 4095

	workerIDShift      = sequenceBits
	datacenterIDShift  = sequenceBits + workerIDBits
	timestampLeftShift = sequenceBits + workerIDBits + datacenterIDBits

	// 允许的最大时钟回拨，超过则报错
	maxClockDrift = 5 * time.Millisecond
)

// ErrClockMovedBackwards 时钟回拨超过容忍范围
var ErrClockMovedBackwards = errors.New("snowflake: clock moved backwards")

// Generator Snowflake ID生成器，并发安全，同一生成器产生的ID严格递增
type Generator struct {
	mu            sync.Mutex
	datacenterID  int64
	workerID      int64
	sequence      int64
	lastTimestamp int64
	now           func() time.Time
}

// NewGenerator 创建ID生成器
func NewGenerator(datacenterID, workerID int64) (*Generator, error) {
	if datacenterID < 0 || datacenterID > maxDatacenterID {
		return nil, errors.New("snowflake: datacenter ID out of range")
	}
	if workerID < 0 || workerID > maxWorkerID {
		return nil, errors.New("snowflake: worker ID out of range")
	}

	return &Generator{
		datacenterID:  datacenterID,
		workerID:      workerID,
		lastTimestamp: -1,
		now:           time.Now,
	}, nil
}

// NextID 生成下一个ID
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.millis()
	if now < g.lastTimestamp {
		drift := time.Duration(g.lastTimestamp-now) * time.Millisecond
		if drift > maxClockDrift {
			return 0, ErrClockMovedBackwards
		}
		for now < g.lastTimestamp {
			time.Sleep(time.Millisecond)
			now = g.millis()
		}
	}

	if now == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= g.lastTimestamp {
				now = g.millis()
			}
		}
	} else {
		g.sequence = 0
	}

	g.lastTimestamp = now

	return ((now - epoch) << timestampLeftShift) |
		(g.datacenterID << datacenterIDShift) |
		(g.workerID << workerIDShift) |
		g.sequence, nil
}

func (g *Generator) millis() int64 {
	return g.now().UnixMilli()
}

// Parts 一个ID拆解后的各段
type Parts struct {
	Time         time.Time
	DatacenterID int64
	WorkerID     int64
	Sequence     int64
}

// Parse 解析ID
func Parse(id int64) Parts {
	return Parts{
		Time:         time.UnixMilli((id >> timestampLeftShift) + epoch),
		DatacenterID: (id >> datacenterIDShift) & maxDatacenterID,
		WorkerID:     (id >> workerIDShift) & maxWorkerID,
		Sequence:     id & maxSequence,
	}
}

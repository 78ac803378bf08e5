package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer 记录生命周期调用顺序；block 为 true 时 Run 阻塞到 ctx 取消
type fakeServer struct {
	mu    sync.Mutex
	steps []string

	loadErr       error
	backgroundErr error
	runErr        error
	block         bool

	bgDone chan struct{}
}

func (s *fakeServer) record(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

func (s *fakeServer) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.steps...)
}

func (s *fakeServer) Name() string { return "fake" }

func (s *fakeServer) LoadConfig() error {
	s.record("LoadConfig")
	return s.loadErr
}

func (s *fakeServer) SetupDependencies(context.Context) error {
	s.record("SetupDependencies")
	return nil
}

func (s *fakeServer) StartBackgroundTasks(ctx context.Context) error {
	s.record("StartBackgroundTasks")
	if s.backgroundErr != nil {
		return s.backgroundErr
	}
	s.bgDone = make(chan struct{})
	go func() {
		<-ctx.Done()
		close(s.bgDone)
	}()
	return nil
}

func (s *fakeServer) Run(ctx context.Context) error {
	s.record("Run")
	if s.block {
		<-ctx.Done()
	}
	return s.runErr
}

func (s *fakeServer) Shutdown(context.Context) error {
	s.record("Shutdown")
	return nil
}

func TestEngine_Lifecycle(t *testing.T) {
	srv := &fakeServer{}
	stopped := false
	e := NewEngine(srv,
		WithShutdownTimeout(50*time.Millisecond),
		WithAfterStop(func(context.Context) error { stopped = true; return nil }),
	)

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, StateStopped, e.State())
	assert.Equal(t, []string{"LoadConfig", "SetupDependencies", "StartBackgroundTasks", "Run", "Shutdown"}, srv.snapshot())
	assert.True(t, stopped)

	select {
	case <-srv.bgDone:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("background context was not cancelled")
	}
}

func TestEngine_ContextCancelStops(t *testing.T) {
	srv := &fakeServer{block: true}
	e := NewEngine(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	assert.Equal(t, StateStopped, e.State())
	assert.Contains(t, srv.snapshot(), "Shutdown")
}

func TestEngine_RunError(t *testing.T) {
	runErr := errors.New("listen failed")
	srv := &fakeServer{runErr: runErr}
	e := NewEngine(srv)

	err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, runErr)
	assert.Contains(t, err.Error(), "server execution error")
	assert.Equal(t, StateError, e.State())
	assert.Equal(t, "Shutdown", srv.snapshot()[len(srv.snapshot())-1])
}

func TestEngine_LoadConfigErrorStopsEarly(t *testing.T) {
	loadErr := errors.New("bad config")
	srv := &fakeServer{loadErr: loadErr}
	e := NewEngine(srv)

	err := e.Run(context.Background())
	assert.ErrorIs(t, err, loadErr)
	assert.Equal(t, StateError, e.State())
	assert.Equal(t, []string{"LoadConfig"}, srv.snapshot())
}

func TestEngine_BackgroundErrorShutsDown(t *testing.T) {
	bgErr := errors.New("transport down")
	srv := &fakeServer{backgroundErr: bgErr}
	e := NewEngine(srv)

	err := e.Run(context.Background())
	assert.ErrorIs(t, err, bgErr)
	assert.Equal(t, StateError, e.State())
	assert.Equal(t, []string{"LoadConfig", "SetupDependencies", "StartBackgroundTasks", "Shutdown"}, srv.snapshot())
}

func TestEngine_BeforeStartHookAborts(t *testing.T) {
	hookErr := errors.New("not ready")
	srv := &fakeServer{}
	e := NewEngine(srv, WithBeforeStart(func(context.Context) error { return hookErr }))

	err := e.Run(context.Background())
	assert.ErrorIs(t, err, hookErr)
	assert.NotContains(t, srv.snapshot(), "Run")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Unknown", State(99).String())
}

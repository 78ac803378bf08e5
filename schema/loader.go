package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// document YAML 文件结构
type document struct {
	Version string       `yaml:"version"`
	Types   []EntityType `yaml:"types"`
}

// Load 从 YAML 读取注册表；未声明 version 时以内容摘要作为版本
func Load(r io.Reader) (*Registry, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("schema: read: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema: parse: %w", err)
	}

	version := doc.Version
	if version == "" {
		sum := sha256.Sum256(raw)
		version = hex.EncodeToString(sum[:8])
	}

	return NewRegistry(version, doc.Types...)
}

// LoadFile 从文件读取注册表
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

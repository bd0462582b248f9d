package session

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/pelletier/go-toml/v2"
)

// StateFileName 会话状态文件名
const StateFileName = "session.toml"

// 数据来源类型
const (
	KindStored = "stored"
	KindFile   = "file"
	KindPasted = "pasted"
)

// State 跨命令保存的会话状态
type State struct {
	Kind     string    `toml:"kind"`
	Source   string    `toml:"source"`
	Pasted   string    `toml:"pasted,omitempty"`
	LoadedAt time.Time `toml:"loaded_at"`
}

// LoadState 读取会话状态，文件不存在时返回 ErrNoData
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("读取会话状态失败: %w", err)
	}

	var st State
	if err := toml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("解析会话状态失败: %w", err)
	}
	switch st.Kind {
	case KindStored, KindFile, KindPasted:
	default:
		return nil, fmt.Errorf("未知的数据来源类型: %q", st.Kind)
	}
	return &st, nil
}

// SaveState 原子地写入会话状态
func SaveState(path string, st *State) error {
	if st == nil {
		return fmt.Errorf("会话状态不能为空")
	}
	if st.LoadedAt.IsZero() {
		st.LoadedAt = time.Now()
	}

	data, err := toml.Marshal(st)
	if err != nil {
		return fmt.Errorf("序列化会话状态失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("写入会话状态失败: %w", err)
	}
	return nil
}

// ClearState 删除会话状态
func ClearState(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("删除会话状态失败: %w", err)
	}
	return nil
}

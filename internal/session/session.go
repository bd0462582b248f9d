// Package session 保存当前加载的数据集
package session

import (
	"errors"
	"sync"

	"github.com/allanpk716/docx_mailmerge/internal/ingest"
	"github.com/allanpk716/docx_mailmerge/internal/record"
)

// ErrNoData 尚未加载数据
var ErrNoData = errors.New("Load data first")

// Session 持有一个当前数据集，替换时整体替换
type Session struct {
	mu sync.RWMutex
	ds *ingest.Dataset
}

// New 创建空会话
func New() *Session {
	return &Session{}
}

// Replace 用新数据集替换当前数据集，nil 表示清空
func (s *Session) Replace(ds *ingest.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ds = ds
}

// Dataset 返回当前数据集
func (s *Session) Dataset() *ingest.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ds
}

// Rows 返回当前数据行的副本
func (s *Session) Rows() []record.Raw {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ds == nil {
		return nil
	}
	out := make([]record.Raw, len(s.ds.Rows))
	for i, row := range s.ds.Rows {
		out[i] = append(record.Raw(nil), row...)
	}
	return out
}

// Require 返回当前数据行，没有数据时返回 ErrNoData
func (s *Session) Require() ([]record.Raw, error) {
	rows := s.Rows()
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	return rows, nil
}

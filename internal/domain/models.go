package domain

import (
	"context"
	"io"
	"strings"
)

// TemplateSource 按名称读取模板内容
type TemplateSource interface {
	OpenTemplate(ctx context.Context, name string) (io.ReadCloser, error)
}

// TemplateFinder 根据用户输入定位模板名称
type TemplateFinder interface {
	FindTemplate(ctx context.Context, choice string) (string, error)
}

// FieldLookup 按字段名查询值，字段名不区分大小写
type FieldLookup interface {
	Get(name string) (string, bool)
}

// PlaceholderMatcher 占位符匹配器接口
type PlaceholderMatcher interface {
	FindMatches(content string, fields FieldLookup) []Match
	ReplaceMatches(content string, matches []Match) string
}

// Match 表示文本中的一个占位符
type Match struct {
	Token       string // 原始占位符 (如 {name}、{{name}}、{NAME})
	Name        string // 去掉括号和空白后的字段名
	Replacement string // 替换值
	StartPos    int    // 开始位置
	EndPos      int    // 结束位置
	Double      bool   // 是否为双括号形式
}

// Upper 判断占位符是否要求大写输出，只有单括号且全大写的形式才算
func (m Match) Upper() bool {
	if m.Double {
		return false
	}
	return m.Name == strings.ToUpper(m.Name) && m.Name != strings.ToLower(m.Name)
}

// Stats 一次替换的统计信息
type Stats struct {
	Segments     int
	Replacements int
	Images       int
	Unresolved   []string
}

// Add 累加另一份统计
func (s *Stats) Add(other Stats) {
	s.Segments += other.Segments
	s.Replacements += other.Replacements
	s.Images += other.Images
	s.Unresolved = append(s.Unresolved, other.Unresolved...)
}

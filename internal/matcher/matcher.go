package matcher

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/allanpk716/docx_mailmerge/internal/domain"
)

// tokenPattern 先匹配双括号，避免 {{name}} 被拆成 {name} 加多余括号
var tokenPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}|\{([^{}]+)\}`)

// placeholderMatcher 占位符匹配器实现
type placeholderMatcher struct {
	upper cases.Caser
}

// NewPlaceholderMatcher 创建新的占位符匹配器
func NewPlaceholderMatcher() domain.PlaceholderMatcher {
	return &placeholderMatcher{
		upper: cases.Upper(language.Und),
	}
}

// FindTokens 查找内容中的所有占位符，按出现顺序返回
func FindTokens(content string) []domain.Match {
	var matches []domain.Match
	for _, idx := range tokenPattern.FindAllStringSubmatchIndex(content, -1) {
		m := domain.Match{
			Token:    content[idx[0]:idx[1]],
			StartPos: idx[0],
			EndPos:   idx[1],
		}
		if idx[2] >= 0 {
			m.Name = strings.TrimSpace(content[idx[2]:idx[3]])
			m.Double = true
		} else {
			m.Name = strings.TrimSpace(content[idx[4]:idx[5]])
		}
		if m.Name == "" {
			continue
		}
		matches = append(matches, m)
	}
	return matches
}

// FindMatches 在内容中查找所有能解析的占位符，未知字段不返回
func (pm *placeholderMatcher) FindMatches(content string, fields domain.FieldLookup) []domain.Match {
	var matches []domain.Match

	for _, m := range FindTokens(content) {
		value, ok := fields.Get(m.Name)
		if !ok {
			continue
		}
		if m.Upper() {
			value = pm.upper.String(value)
		}
		m.Replacement = value
		matches = append(matches, m)
	}

	// 按位置排序，从后往前替换避免位置偏移
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].StartPos > matches[j].StartPos
	})

	return matches
}

// ReplaceMatches 根据匹配结果替换内容
func (pm *placeholderMatcher) ReplaceMatches(content string, matches []domain.Match) string {
	result := content

	// 从后往前替换，避免位置偏移问题
	for _, match := range matches {
		if match.StartPos >= 0 && match.EndPos <= len(result) && match.StartPos <= match.EndPos {
			result = result[:match.StartPos] + match.Replacement + result[match.EndPos:]
		}
	}

	return result
}

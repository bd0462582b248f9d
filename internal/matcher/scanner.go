package matcher

import (
	"regexp"
	"sort"
	"strings"
)

// scanPattern 与替换使用的模式不同，允许占位符内出现括号
var scanPattern = regexp.MustCompile(`\{\{(.*?)\}\}|\{(.*?)\}`)

// ParagraphSource 能提供段落文本的文档
type ParagraphSource interface {
	ParagraphTexts() (body []string, tables []string)
}

// ExtractPlaceholders 提取文档中出现的占位符名称，去重后排序
func ExtractPlaceholders(doc ParagraphSource) []string {
	body, tables := doc.ParagraphTexts()
	corpus := strings.Join(append(append([]string{}, body...), tables...), " ")
	return ScanText(corpus)
}

// ScanText 提取文本中的占位符名称，去重后排序
func ScanText(text string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range scanPattern.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FormatPlaceholderList 生成占位符列表的展示文本
func FormatPlaceholderList(names []string) string {
	if len(names) == 0 {
		return "No placeholders detected"
	}
	return strings.Join(names, ", ")
}

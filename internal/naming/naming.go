// Package naming 根据命名模式生成输出文件名
package naming

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/allanpk716/docx_mailmerge/internal/domain"
)

// DefaultMaxLength 文件名最大长度（字符数）
const DefaultMaxLength = 200

var (
	patternToken = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}|\{\s*([^{}]*?)\s*\}`)
	illegalChars = regexp.MustCompile(`[\\/*?<>|:"\x00-\x1f\x7f]+`)
)

// Resolver 文件名解析器
type Resolver struct {
	maxLength int
	suffix    func() string
}

// NewResolver 创建文件名解析器，maxLength 不大于 0 时使用默认值
func NewResolver(maxLength int) *Resolver {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Resolver{maxLength: maxLength, suffix: RandomSuffix}
}

// RandomSuffix 返回 6 位十六进制随机串
func RandomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

// Resolve 生成不含扩展名的文件名，任何情况下都会返回可用的名称。
// 模式为空时回退到 <模板名>_<name>，没有 name 字段时用随机后缀；
// 模式给出但结果为空或占位符全部无法解析时回退到 <模板名>_<随机后缀>
func (r *Resolver) Resolve(pattern, templateBase string, fields domain.FieldLookup) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		tail := ""
		if fields != nil {
			if name, ok := fields.Get("name"); ok {
				tail = name
			}
		}
		return r.fallback(templateBase, tail)
	}

	substituted, resolved, total := substitute(pattern, fields)
	if total == 0 || resolved > 0 {
		if name := r.Sanitize(substituted); name != "" {
			return name
		}
	}
	return r.fallback(templateBase, "")
}

// Sanitize 替换非法字符、去除首尾空白并截断长度
func (r *Resolver) Sanitize(name string) string {
	name = strings.TrimSpace(illegalChars.ReplaceAllString(name, "_"))
	runes := []rune(name)
	if len(runes) > r.maxLength {
		name = strings.TrimSpace(string(runes[:r.maxLength]))
	}
	return name
}

func (r *Resolver) fallback(templateBase, tail string) string {
	base := r.Sanitize(templateBase)
	if base == "" {
		base = "document"
	}
	tail = r.Sanitize(tail)
	if tail == "" {
		tail = r.suffix()
	}
	return r.Sanitize(base + "_" + tail)
}

// substitute 替换模式中的字段，返回结果、成功替换数和占位符总数
func substitute(pattern string, fields domain.FieldLookup) (string, int, int) {
	resolved, total := 0, 0
	out := patternToken.ReplaceAllStringFunc(pattern, func(tok string) string {
		m := patternToken.FindStringSubmatch(tok)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if name == "" {
			return tok
		}
		total++
		if fields == nil {
			return tok
		}
		value, ok := fields.Get(name)
		if !ok {
			return tok
		}
		resolved++
		return value
	})
	return out, resolved, total
}

// Package record 定义合并使用的字段记录以及字段规范化
package record

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Pair 原始数据中的一个字段
type Pair struct {
	Key   string
	Value any
}

// Raw 一行原始数据，保持列顺序
type Raw []Pair

// RawFromMap 按键名排序构造原始数据
func RawFromMap(m map[string]any) Raw {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	raw := make(Raw, 0, len(keys))
	for _, k := range keys {
		raw = append(raw, Pair{Key: k, Value: m[k]})
	}
	return raw
}

// Get 返回第一个规范化后名称相同的字段值
func (r Raw) Get(key string) (any, bool) {
	want := CanonicalKey(key)
	for _, p := range r {
		if CanonicalKey(p.Key) == want {
			return p.Value, true
		}
	}
	return nil, false
}

// Field 记录中的一个字段
type Field struct {
	Name  string
	Value string
}

// Record 有序的字段表，字段名不区分大小写
type Record struct {
	names  []string
	values map[string]string
}

// New 创建空记录
func New() *Record {
	return &Record{values: make(map[string]string)}
}

// FromMap 由映射创建记录，字段按名称排序
func FromMap(m map[string]string) *Record {
	r := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.Set(k, m[k])
	}
	return r
}

// Set 设置字段值，新字段追加到末尾
func (r *Record) Set(name, value string) {
	key := CanonicalKey(name)
	if key == "" {
		return
	}
	if _, ok := r.values[key]; !ok {
		r.names = append(r.names, key)
	}
	r.values[key] = value
}

// Get 查询字段值
func (r *Record) Get(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r.values[CanonicalKey(name)]
	return v, ok
}

// Value 返回字段值，不存在时为空字符串
func (r *Record) Value(name string) string {
	v, _ := r.Get(name)
	return v
}

// Has 判断字段是否存在且非空
func (r *Record) Has(name string) bool {
	return strings.TrimSpace(r.Value(name)) != ""
}

// Names 返回全部字段名
func (r *Record) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Fields 按顺序返回全部字段
func (r *Record) Fields() []Field {
	out := make([]Field, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, Field{Name: name, Value: r.values[name]})
	}
	return out
}

// Len 返回字段数量
func (r *Record) Len() int { return len(r.names) }

// Clone 复制记录
func (r *Record) Clone() *Record {
	cp := New()
	for _, name := range r.names {
		cp.Set(name, r.values[name])
	}
	return cp
}

// Identity 返回用于错误信息的记录标识，优先使用 name 字段
func (r *Record) Identity(index int) string {
	if name := strings.TrimSpace(r.Value("name")); name != "" {
		return name
	}
	return fmt.Sprintf("Row %d", index+1)
}

// CanonicalKey 规范化字段名：NFKC、去除首尾空白、小写、内部空白替换为下划线
func CanonicalKey(key string) string {
	key = strings.TrimSpace(norm.NFKC.String(key))
	if key == "" {
		return ""
	}
	return strings.Join(strings.FieldsFunc(strings.ToLower(key), unicode.IsSpace), "_")
}

// Stringify 把任意值转换为去除首尾空白的字符串，nil 为空字符串
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []byte:
		return strings.TrimSpace(string(val))
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		return val.Format("2 January 2006")
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

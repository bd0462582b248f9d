package record

import (
	"go.uber.org/zap"

	"github.com/allanpk716/docx_mailmerge/internal/dates"
)

// DefaultAliasGroups 内置别名组
var DefaultAliasGroups = [][]string{
	{"name", "nama"},
	{"degree", "jenis_degree"},
	{"date", "tarikh", "tarikh_submit", "tarikh_viva"},
}

// dateGroupKey 包含该字段的别名组被视为日期组，总会被填充
const dateGroupKey = "date"

// Options 规范化参数
type Options struct {
	AliasGroups [][]string
	DateFields  []string
}

// Normalizer 字段规范化器
type Normalizer struct {
	aliases    [][]string
	groupOf    map[string]int
	dateGroup  []string
	dateFields map[string]bool
	coercer    *dates.Coercer
	logger     *zap.Logger
}

// NewNormalizer 创建字段规范化器，AliasGroups 为空时使用内置别名组
func NewNormalizer(opts Options, coercer *dates.Coercer, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if coercer == nil {
		coercer = dates.NewCoercer()
	}

	groups := opts.AliasGroups
	if len(groups) == 0 {
		groups = DefaultAliasGroups
	}

	n := &Normalizer{
		groupOf:    make(map[string]int),
		dateFields: make(map[string]bool),
		coercer:    coercer,
		logger:     logger,
	}
	for _, g := range groups {
		members := make([]string, 0, len(g))
		for _, m := range g {
			if key := CanonicalKey(m); key != "" {
				members = append(members, key)
			}
		}
		if len(members) == 0 {
			continue
		}
		n.aliases = append(n.aliases, members)
		for _, m := range members {
			n.groupOf[m] = len(n.aliases) - 1
			if m == dateGroupKey {
				n.dateGroup = members
			}
		}
	}
	for _, m := range n.dateGroup {
		n.dateFields[m] = true
	}
	for _, f := range opts.DateFields {
		if key := CanonicalKey(f); key != "" {
			n.dateFields[key] = true
		}
	}
	return n
}

// Normalize 把一行原始数据转换为规范化记录
func (n *Normalizer) Normalize(raw Raw) *Record {
	var order []string
	values := make(map[string]any)
	for _, p := range raw {
		key := CanonicalKey(p.Key)
		if key == "" {
			continue
		}
		if _, ok := values[key]; !ok {
			order = append(order, key)
		}
		values[key] = p.Value
	}

	// 别名组：按组内顺序取第一个非空值，同步到所有成员
	for _, group := range n.aliases {
		var chosen any
		found := false
		for _, m := range group {
			if v, ok := values[m]; ok && Stringify(v) != "" {
				chosen, found = v, true
				break
			}
		}
		if !found {
			continue
		}
		for _, m := range group {
			if _, ok := values[m]; !ok {
				order = append(order, m)
			}
			values[m] = chosen
		}
	}

	rec := New()
	coerced := make(map[int]string)
	for _, key := range order {
		v := values[key]
		if !n.dateFields[key] || Stringify(v) == "" {
			rec.Set(key, Stringify(v))
			continue
		}

		// 同一别名组共享同一个值，只转换一次
		gi, grouped := n.groupOf[key]
		if text, ok := coerced[gi]; grouped && ok {
			rec.Set(key, text)
			continue
		}
		res := n.coercer.Coerce(v)
		if res.Fallback {
			n.logger.Warn("日期无法解析，使用当天日期",
				zap.String("field", key),
				zap.Any("value", v),
				zap.String("reason", res.Reason))
		}
		if grouped {
			coerced[gi] = res.Text
		}
		rec.Set(key, res.Text)
	}

	// 日期组缺失或为空时填入当天日期
	if len(n.dateGroup) > 0 && !rec.Has(n.dateGroup[0]) {
		today := n.coercer.Today()
		for _, m := range n.dateGroup {
			rec.Set(m, today)
		}
	}

	return rec
}

// NormalizeAll 依次规范化多行数据
func (n *Normalizer) NormalizeAll(rows []Raw) []*Record {
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, n.Normalize(row))
	}
	return out
}

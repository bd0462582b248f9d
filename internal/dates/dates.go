// Package dates 把表格和文本中的日期值统一转换为信件使用的格式
package dates

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Layout 输出格式，例如 14 October 2025
const Layout = "2 January 2006"

// maxSerial 对应 9999-12-31
const maxSerial = 2958465

// maxTextSerial 文本形式的序列日期上限，对应 2173 年
const maxTextSerial = 100000

// compactDate 四位年份或 YYYYMMDD
var compactDate = regexp.MustCompile(`^(\d{4}|\d{8})$`)

var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Result 一次转换的结果
type Result struct {
	Text     string
	Time     time.Time
	Fallback bool   // 无法解析时为 true，此时 Text 是当天日期
	Reason   string // 回退原因
}

// Coercer 日期转换器
type Coercer struct {
	now func() time.Time
	loc *time.Location
}

// NewCoercer 创建日期转换器
func NewCoercer() *Coercer {
	return &Coercer{now: time.Now, loc: time.Local}
}

// WithClock 替换当前时间来源，返回新的转换器
func (c *Coercer) WithClock(now func() time.Time) *Coercer {
	cp := *c
	cp.now = now
	return &cp
}

// Today 返回当天日期的文本
func (c *Coercer) Today() string {
	return c.now().Format(Layout)
}

// FromSerial 把表格序列日期转换为时间，小数部分表示一天中的时间
func FromSerial(days float64) time.Time {
	whole, frac := math.Modf(days)
	t := serialEpoch.AddDate(0, 0, int(whole))
	return t.Add(time.Duration(math.Round(frac * 24 * float64(time.Hour))))
}

// Coerce 将任意值转换为日期文本，无法解析时回退到当天
func (c *Coercer) Coerce(v any) Result {
	t, err := c.parse(v)
	if err != nil {
		now := c.now()
		return Result{Text: now.Format(Layout), Time: now, Fallback: true, Reason: err.Error()}
	}
	return Result{Text: t.Format(Layout), Time: t}
}

func (c *Coercer) parse(v any) (time.Time, error) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("日期为空")
	case time.Time:
		if val.IsZero() {
			return time.Time{}, fmt.Errorf("日期为空")
		}
		return val, nil
	case *time.Time:
		if val == nil || val.IsZero() {
			return time.Time{}, fmt.Errorf("日期为空")
		}
		return *val, nil
	case int:
		return serial(float64(val))
	case int32:
		return serial(float64(val))
	case int64:
		return serial(float64(val))
	case uint:
		return serial(float64(val))
	case float32:
		return serial(float64(val))
	case float64:
		return serial(val)
	case string:
		return c.parseString(val)
	case []byte:
		return c.parseString(string(val))
	case fmt.Stringer:
		return c.parseString(val.String())
	default:
		return c.parseString(fmt.Sprint(val))
	}
}

func (c *Coercer) parseString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("日期为空")
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && plausibleSerial(s, f) {
		if t, err := serial(f); err == nil {
			return t, nil
		}
	}

	t, err := dateparse.ParseIn(s, c.loc,
		dateparse.PreferMonthFirst(false),
		dateparse.RetryAmbiguousDateWithSwap(true))
	if err != nil {
		return time.Time{}, fmt.Errorf("无法识别日期 %q: %w", s, err)
	}
	return t, nil
}

// plausibleSerial 判断数字文本是否按序列日期处理，2023、20230720 这类按年份和紧凑日期解析
func plausibleSerial(s string, days float64) bool {
	if compactDate.MatchString(s) {
		return false
	}
	return days >= 1 && days < maxTextSerial
}

func serial(days float64) (time.Time, error) {
	if math.IsNaN(days) || days <= 0 || days > maxSerial {
		return time.Time{}, fmt.Errorf("序列日期超出范围: %v", days)
	}
	return FromSerial(days), nil
}

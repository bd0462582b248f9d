// Package ingest 读取 CSV、XLSX 和粘贴的文本数据
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/allanpk716/docx_mailmerge/internal/dates"
	"github.com/allanpk716/docx_mailmerge/internal/record"
)

// ErrUnsupportedFile 不支持的文件类型
var ErrUnsupportedFile = errors.New("unsupported file type")

// Dataset 一份已加载的数据
type Dataset struct {
	Source  string
	Rows    []record.Raw
	Columns []string
}

// Len 返回行数
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Head 返回前 n 行
func (d *Dataset) Head(n int) []record.Raw {
	if n < 0 || n > len(d.Rows) {
		n = len(d.Rows)
	}
	return d.Rows[:n]
}

// Options 读取参数
type Options struct {
	// DateColumns 中的列在 XLSX 中按原始序列值读取
	DateColumns []string
}

// SupportedExtension 判断扩展名是否为支持的数据文件
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx", ".xlsm":
		return true
	}
	return false
}

// ParseFile 按扩展名解析数据文件
func ParseFile(name string, r io.Reader, opts Options) (*Dataset, error) {
	var (
		header []string
		rows   []record.Raw
		err    error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		header, rows, err = parseCSV(r)
	case ".xlsx", ".xlsm":
		header, rows, err = parseXLSX(r, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(name))
	}
	if err != nil {
		return nil, fmt.Errorf("读取 %s 失败: %w", name, err)
	}

	return &Dataset{Source: name, Rows: rows, Columns: columns(header)}, nil
}

func parseCSV(r io.Reader) ([]string, []record.Raw, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("解析 CSV 表头失败: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows []record.Raw
	for {
		cells, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("解析 CSV 失败: %w", err)
		}
		if row := buildRow(header, cells, nil); row != nil {
			rows = append(rows, row)
		}
	}
	return header, rows, nil
}

func parseXLSX(r io.Reader, opts Options) ([]string, []record.Raw, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("打开工作簿失败: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, nil
	}
	sheet := sheets[0]

	formatted, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("读取工作表 %s 失败: %w", sheet, err)
	}
	if len(formatted) == 0 {
		return nil, nil, nil
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("读取工作表 %s 失败: %w", sheet, err)
	}

	header := formatted[0]
	dateCols := make(map[int]bool)
	wanted := make(map[string]bool)
	for _, c := range opts.DateColumns {
		wanted[record.CanonicalKey(c)] = true
	}
	for i, h := range header {
		if wanted[record.CanonicalKey(h)] {
			dateCols[i] = true
		}
	}

	styles := newDateStyles(f)

	var rows []record.Raw
	for i := 1; i < len(formatted); i++ {
		var rawCells []string
		if i < len(raw) {
			rawCells = raw[i]
		}
		if row := buildRow(header, formatted[i], func(col int) (any, bool) {
			if col >= len(rawCells) {
				return nil, false
			}
			n, err := strconv.ParseFloat(strings.TrimSpace(rawCells[col]), 64)
			if err != nil {
				return nil, false
			}
			// 日期列保留序列值，交给日期转换处理
			if dateCols[col] {
				return n, true
			}
			// 其他列中按日期格式显示的单元格直接转换为信件日期格式
			if styles.isDate(sheet, col, i) {
				return dates.FromSerial(n).Format(dates.Layout), true
			}
			return nil, false
		}); row != nil {
			rows = append(rows, row)
		}
	}
	return header, rows, nil
}

// 内置的日期数字格式编号
var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true, 21: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true, 32: true, 33: true, 34: true, 35: true, 36: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 55: true, 56: true, 57: true, 58: true,
}

// dateStyles 按样式编号缓存单元格是否为日期格式
type dateStyles struct {
	f     *excelize.File
	cache map[int]bool
}

func newDateStyles(f *excelize.File) *dateStyles {
	return &dateStyles{f: f, cache: make(map[int]bool)}
}

// isDate 判断 0 起始坐标处的单元格是否使用日期格式
func (d *dateStyles) isDate(sheet string, col, row int) bool {
	cell, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return false
	}
	idx, err := d.f.GetCellStyle(sheet, cell)
	if err != nil {
		return false
	}
	if v, ok := d.cache[idx]; ok {
		return v
	}

	v := false
	if style, err := d.f.GetStyle(idx); err == nil && style != nil {
		v = builtinDateFormats[style.NumFmt]
		if !v && style.CustomNumFmt != nil {
			v = isDateFormatCode(*style.CustomNumFmt)
		}
	}
	d.cache[idx] = v
	return v
}

// isDateFormatCode 自定义格式去掉引号文本和方括号部分后含有 d 或 y 即视为日期
func isDateFormatCode(code string) bool {
	var sb strings.Builder
	quoted, bracket := false, false
	for _, r := range code {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '[':
			bracket = true
		case r == ']':
			bracket = false
		case bracket:
		default:
			sb.WriteRune(r)
		}
	}
	plain := strings.ToLower(sb.String())
	return strings.ContainsAny(plain, "dy")
}

// buildRow 按表头组装一行，整行为空时返回 nil
func buildRow(header, cells []string, override func(col int) (any, bool)) record.Raw {
	row := make(record.Raw, 0, len(header))
	empty := true
	for i, h := range header {
		if strings.TrimSpace(h) == "" {
			continue
		}
		var value any
		if i < len(cells) {
			value = strings.TrimSpace(cells[i])
			if value != "" {
				empty = false
			}
		}
		if override != nil {
			if v, ok := override(i); ok {
				value = v
			}
		}
		row = append(row, record.Pair{Key: h, Value: value})
	}
	if empty {
		return nil
	}
	return row
}

// columns 返回规范化后的列名集合，按名称排序
func columns(header []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range header {
		key := record.CanonicalKey(h)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

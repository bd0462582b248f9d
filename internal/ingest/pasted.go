package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/allanpk716/docx_mailmerge/internal/record"
)

// PastedSource 粘贴数据的来源名称
const PastedSource = "pasted text"

// LineError 粘贴文本中无法解析的片段
type LineError struct {
	Line  int
	Token string
}

func (e LineError) Error() string {
	return fmt.Sprintf("Line %d: '%s' missing ':'", e.Line, e.Token)
}

// ParsePasted 解析粘贴的文本，每个非空行一条记录，字段形如 key: value 并以逗号分隔
func ParsePasted(text string) (*Dataset, []LineError) {
	var (
		rows []record.Raw
		errs []LineError
	)
	seen := make(map[string]bool)

	lineNo := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lineNo++

		var row record.Raw
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			key, value, ok := strings.Cut(part, ":")
			if !ok {
				errs = append(errs, LineError{Line: lineNo, Token: part})
				continue
			}
			key = strings.TrimSpace(key)
			row = append(row, record.Pair{Key: key, Value: strings.TrimSpace(value)})
			if canonical := record.CanonicalKey(key); canonical != "" {
				seen[canonical] = true
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}

	cols := make([]string, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	return &Dataset{Source: PastedSource, Rows: rows, Columns: cols}, errs
}

// JoinErrors 把行错误合并成一行文本
func JoinErrors(errs []LineError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "; ")
}

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusNone statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

// 状态前缀及其在非终端输出中的替代文本
var statusMarks = []struct {
	mark  string
	kind  statusKind
	label string
}{
	{"✅", statusOK, "[OK]"},
	{"⚠️", statusWarn, "[WARN]"},
	{"❌", statusError, "[ERROR]"},
}

// printer 输出状态行和表格，只有终端才使用颜色和表情符号
type printer struct {
	out      io.Writer
	terminal bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{out: w, terminal: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// status 输出一条或多条状态行
func (p *printer) status(message string) {
	for _, line := range strings.Split(message, "\n") {
		fmt.Fprintln(p.out, p.decorate(line))
	}
}

func (p *printer) statusf(format string, args ...any) {
	p.status(fmt.Sprintf(format, args...))
}

func (p *printer) decorate(line string) string {
	for _, m := range statusMarks {
		if !strings.HasPrefix(line, m.mark) {
			continue
		}
		if !p.terminal {
			return m.label + line[len(m.mark):]
		}
		return statusColor(m.kind) + line + ansiReset
	}
	return line
}

func statusColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ""
	}
}

// table 输出表格
func (p *printer) table(headers []string, rows [][]string) {
	fmt.Fprintln(p.out, renderTable(headers, rows))
}

func renderTable(headers []string, rows [][]string) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			AlignHeader: text.AlignLeft,
			WidthMax:    60,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

package docx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/nguyenthenguyen/docx"
)

// ErrNotDocx 表示数据不是合法的 DOCX 包
var ErrNotDocx = errors.New("不是有效的 DOCX 文档")

// Template 是只读的模板文档，替换总是在 Open 返回的副本上进行
type Template struct {
	name string
	data []byte
}

// ParseTemplate 校验模板数据并创建模板
func ParseTemplate(name string, data []byte) (*Template, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s 内容为空", ErrNotDocx, name)
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	tpl := &Template{name: name, data: buf}
	doc, err := tpl.Open()
	if err != nil {
		return nil, err
	}
	doc.Close()

	return tpl, nil
}

// Name 返回模板名称
func (t *Template) Name() string { return t.name }

// BaseName 返回去掉扩展名的模板名称
func (t *Template) BaseName() string {
	base := filepath.Base(t.name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Open 加载模板的一个独立副本
func (t *Template) Open() (*Document, error) {
	reader, err := docx.ReadDocxFromMemory(bytes.NewReader(t.data), int64(len(t.data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotDocx, t.name, err)
	}

	editable := reader.Editable()
	content := editable.GetContent()
	if content == "" {
		reader.Close()
		return nil, fmt.Errorf("%w: %s 缺少 word/document.xml", ErrNotDocx, t.name)
	}

	lay, err := parseLayout(content)
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}

	texts := make([]string, len(lay.segments))
	for i, seg := range lay.segments {
		texts[i] = seg.original
	}

	return &Document{
		name:     t.name,
		reader:   reader,
		editable: editable,
		content:  content,
		layout:   lay,
		texts:    texts,
		dirty:    make(map[int]bool),
	}, nil
}

// Document 是一份可修改的模板副本
type Document struct {
	name     string
	reader   *docx.ReplaceDocx
	editable *docx.Docx
	content  string
	layout   *layout
	texts    []string
	dirty    map[int]bool
	inserts  []insertion
	media    []*mediaPart
	props    []Property
	rels     *string
}

// insertion 表示在某个 run 之后插入的 XML
type insertion struct {
	offset int
	xml    string
}

// Name 返回来源模板名称
func (d *Document) Name() string { return d.name }

// Segments 返回全部文本片段：先正文段落，再表格单元格段落
func (d *Document) Segments() []*Segment {
	body := make([]*Segment, 0, len(d.layout.segments))
	var tables []*Segment
	for _, seg := range d.layout.segments {
		if seg.InTable() {
			tables = append(tables, seg)
		} else {
			body = append(body, seg)
		}
	}
	return append(body, tables...)
}

// Text 返回片段当前的文本
func (d *Document) Text(seg *Segment) string {
	return d.texts[seg.index]
}

// SetText 修改片段文本，自闭合的空片段不可修改
func (d *Document) SetText(seg *Segment, text string) error {
	if !seg.editable {
		return fmt.Errorf("片段 %d 不可编辑", seg.index)
	}
	if d.texts[seg.index] == text {
		return nil
	}
	d.texts[seg.index] = text
	d.dirty[seg.index] = true
	return nil
}

// ParagraphTexts 返回正文段落和表格段落的文本
func (d *Document) ParagraphTexts() (body []string, tables []string) {
	for _, p := range d.layout.paragraphs {
		var sb strings.Builder
		for _, seg := range p.segments {
			sb.WriteString(d.texts[seg.index])
		}
		if p.inTable {
			tables = append(tables, sb.String())
		} else {
			body = append(body, sb.String())
		}
	}
	return body, tables
}

// Modified 判断文档是否有改动
func (d *Document) Modified() bool {
	return len(d.dirty) > 0 || len(d.inserts) > 0
}

// render 将所有改动应用到 document.xml
func (d *Document) render() string {
	type edit struct {
		start, end int
		text       string
	}

	var edits []edit
	for idx := range d.dirty {
		seg := d.layout.segments[idx]
		var sb strings.Builder
		if seg.preserve {
			sb.WriteString(d.content[seg.tagStart:seg.textStart])
		} else {
			sb.WriteString(`<w:t xml:space="preserve">`)
		}
		sb.WriteString(encodeRunText(d.texts[idx]))
		edits = append(edits, edit{start: seg.tagStart, end: seg.textEnd, text: sb.String()})
	}

	// 同一位置的多次插入按插入顺序合并
	merged := make(map[int]*strings.Builder)
	var offsets []int
	for _, ins := range d.inserts {
		sb, ok := merged[ins.offset]
		if !ok {
			sb = &strings.Builder{}
			merged[ins.offset] = sb
			offsets = append(offsets, ins.offset)
		}
		sb.WriteString(ins.xml)
	}
	for _, off := range offsets {
		edits = append(edits, edit{start: off, end: off, text: merged[off].String()})
	}

	// 从后往前替换，避免位置偏移
	sort.SliceStable(edits, func(i, j int) bool {
		return edits[i].start > edits[j].start
	})

	result := d.content
	for _, e := range edits {
		result = result[:e.start] + e.text + result[e.end:]
	}
	return result
}

// Write 将文档写入 w
func (d *Document) Write(w io.Writer) error {
	if d.editable == nil {
		return fmt.Errorf("文档未打开")
	}

	d.editable.SetContent(d.render())

	var buf bytes.Buffer
	if err := d.editable.Write(&buf); err != nil {
		return fmt.Errorf("写入文档失败: %w", err)
	}

	data := buf.Bytes()
	if len(d.media) > 0 || len(d.props) > 0 {
		patched, err := patchPackage(data, d.media, d.props)
		if err != nil {
			return err
		}
		data = patched
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("写入文档失败: %w", err)
	}
	return nil
}

// Bytes 返回文档的完整字节
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveAs 原子地保存文档到指定路径
func (d *Document) SaveAs(path string) error {
	data, err := d.Bytes()
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("保存文档失败: %w", err)
	}
	return nil
}

// Close 释放底层资源
func (d *Document) Close() error {
	if d.reader == nil {
		return nil
	}
	err := d.reader.Close()
	d.reader = nil
	return err
}

const (
	runTab   = `</w:t><w:tab/><w:t xml:space="preserve">`
	runBreak = `</w:t><w:br/><w:t xml:space="preserve">`
)

// encodeRunText 转义文本，换行和制表符转换为 Word 的对应元素
func encodeRunText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var sb strings.Builder
	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			sb.WriteString(runBreak)
		}
		for j, part := range strings.Split(line, "\t") {
			if j > 0 {
				sb.WriteString(runTab)
			}
			var esc bytes.Buffer
			_ = xml.EscapeText(&esc, []byte(part))
			sb.Write(esc.Bytes())
		}
	}
	return sb.String()
}

package docx

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Segment 表示 document.xml 中的一个 <w:t> 文本片段
// 片段是替换操作的最小单位，占位符被格式边界拆分到多个片段时不会被识别
type Segment struct {
	index     int
	paragraph *Paragraph
	original  string

	tagStart  int // <w:t 的起始位置
	textStart int // 文本内容起始位置
	textEnd   int // </w:t> 的起始位置
	runEnd    int // 所在 </w:r> 之后的位置，不在 run 内时为 -1
	preserve  bool
	editable  bool
}

// Index 返回片段在文档中的顺序号
func (s *Segment) Index() int { return s.index }

// InTable 判断片段是否位于表格内
func (s *Segment) InTable() bool { return s.paragraph != nil && s.paragraph.inTable }

// Editable 判断片段是否可以写入文本，自闭合的 <w:t/> 不可写
func (s *Segment) Editable() bool { return s.editable }

// InRun 判断片段是否属于某个 <w:r>
func (s *Segment) InRun() bool { return s.runEnd >= 0 }

// Paragraph 表示一个 <w:p> 段落
type Paragraph struct {
	index    int
	inTable  bool
	segments []*Segment
}

// InTable 判断段落是否位于表格内
func (p *Paragraph) InTable() bool { return p.inTable }

// layout 是解析 document.xml 得到的片段布局
type layout struct {
	segments   []*Segment
	paragraphs []*Paragraph
}

// parseLayout 按字节偏移扫描 document.xml，记录所有文本片段的位置
func parseLayout(content string) (*layout, error) {
	dec := xml.NewDecoder(strings.NewReader(content))

	var (
		out        layout
		paraStack  []*Paragraph
		runStack   [][]*Segment
		current    *Segment
		tableDepth int
	)

	for {
		offset := int(dec.InputOffset())
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("解析 document.xml 失败: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch qualifiedName(t.Name) {
			case "w:tbl":
				tableDepth++
			case "w:p":
				p := &Paragraph{index: len(out.paragraphs), inTable: tableDepth > 0}
				out.paragraphs = append(out.paragraphs, p)
				paraStack = append(paraStack, p)
			case "w:r":
				runStack = append(runStack, nil)
			case "w:t":
				textStart := int(dec.InputOffset())
				current = &Segment{
					tagStart:  offset,
					textStart: textStart,
					runEnd:    -1,
					preserve:  hasSpacePreserve(t),
					editable:  !strings.HasSuffix(content[offset:textStart], "/>"),
				}
				if len(paraStack) > 0 {
					current.paragraph = paraStack[len(paraStack)-1]
				}
			}
		case xml.EndElement:
			switch qualifiedName(t.Name) {
			case "w:tbl":
				if tableDepth > 0 {
					tableDepth--
				}
			case "w:p":
				if len(paraStack) > 0 {
					paraStack = paraStack[:len(paraStack)-1]
				}
			case "w:r":
				if len(runStack) > 0 {
					end := int(dec.InputOffset())
					for _, seg := range runStack[len(runStack)-1] {
						seg.runEnd = end
					}
					runStack = runStack[:len(runStack)-1]
				}
			case "w:t":
				if current == nil {
					continue
				}
				current.textEnd = offset
				if !current.editable {
					current.textEnd = current.textStart
				}
				current.index = len(out.segments)
				out.segments = append(out.segments, current)
				if current.paragraph != nil {
					current.paragraph.segments = append(current.paragraph.segments, current)
				}
				if len(runStack) > 0 {
					top := len(runStack) - 1
					runStack[top] = append(runStack[top], current)
				}
				current = nil
			}
		case xml.CharData:
			if current != nil {
				current.original += string(t)
			}
		}
	}

	return &out, nil
}

// qualifiedName 还原带前缀的元素名，例如 w:t
func qualifiedName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

// hasSpacePreserve 检查 <w:t> 是否声明了 xml:space
func hasSpacePreserve(el xml.StartElement) bool {
	for _, attr := range el.Attr {
		if attr.Name.Space == "xml" && attr.Name.Local == "space" {
			return true
		}
	}
	return false
}

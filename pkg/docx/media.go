package docx

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path"
	"regexp"
	"strings"
)

const (
	// EMUPerInch 每英寸对应的 EMU 数
	EMUPerInch = 914400

	imageRelType = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
)

// Image 是一张可以插入文档的图片
type Image struct {
	Name   string
	Data   []byte
	Format string
	Width  int
	Height int
}

// LoadImage 读取并识别图片文件，只支持 png、jpeg、gif
func LoadImage(filePath string) (*Image, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取图片失败: %w", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("无法识别图片 %s: %w", filePath, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("图片尺寸无效: %s", filePath)
	}

	return &Image{
		Name:   path.Base(filePath),
		Data:   data,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// mediaPart 是等待写入包内的图片
type mediaPart struct {
	relID       string
	partName    string
	extension   string
	contentType string
	data        []byte
}

var relIDPattern = regexp.MustCompile(`Id="([^"]+)"`)

// InsertImageAfter 在片段所在 run 之后插入一张图片，宽度固定，高度按比例缩放
func (d *Document) InsertImageAfter(seg *Segment, img *Image, widthEMU int64) error {
	if !seg.InRun() {
		return fmt.Errorf("片段 %d 不在 run 内，无法插入图片", seg.index)
	}
	if img == nil || len(img.Data) == 0 {
		return fmt.Errorf("图片数据为空")
	}

	ext, contentType := mediaType(img.Format)
	if ext == "" {
		return fmt.Errorf("不支持的图片格式: %s", img.Format)
	}

	n := len(d.media) + 1
	part := &mediaPart{
		relID:       d.nextRelID(),
		partName:    fmt.Sprintf("word/media/mailmerge_image%d.%s", n, ext),
		extension:   ext,
		contentType: contentType,
		data:        img.Data,
	}
	d.media = append(d.media, part)

	heightEMU := widthEMU * int64(img.Height) / int64(img.Width)
	d.inserts = append(d.inserts, insertion{
		offset: seg.runEnd,
		xml:    drawingRun(part.relID, 10000+n, img.Name, widthEMU, heightEMU),
	})
	return nil
}

// nextRelID 生成不与现有关系冲突的 rId
func (d *Document) nextRelID() string {
	used := make(map[string]bool)
	for _, m := range relIDPattern.FindAllStringSubmatch(d.relationships(), -1) {
		used[m[1]] = true
	}
	for _, part := range d.media {
		used[part.relID] = true
	}
	for i := 1; ; i++ {
		id := fmt.Sprintf("rIdMailMerge%d", i)
		if !used[id] {
			return id
		}
	}
}

// relationships 读取并缓存模板原有的 document.xml.rels
func (d *Document) relationships() string {
	if d.rels != nil {
		return *d.rels
	}

	rels := ""
	var buf bytes.Buffer
	if err := d.editable.Write(&buf); err == nil {
		rels, _, _ = readPart(buf.Bytes(), relsPath)
	}
	d.rels = &rels
	return rels
}

func mediaType(format string) (string, string) {
	switch format {
	case "png":
		return "png", "image/png"
	case "jpeg":
		return "jpeg", "image/jpeg"
	case "gif":
		return "gif", "image/gif"
	default:
		return "", ""
	}
}

// drawingRun 生成内嵌图片的 run
func drawingRun(relID string, docPrID int, name string, cx, cy int64) string {
	var esc bytes.Buffer
	_ = escapeAttr(&esc, name)
	return fmt.Sprintf(`<w:r><w:drawing>`+
		`<wp:inline xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing" distT="0" distB="0" distL="0" distR="0">`+
		`<wp:extent cx="%[1]d" cy="%[2]d"/>`+
		`<wp:docPr id="%[3]d" name="Picture %[3]d"/>`+
		`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">`+
		`<a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:nvPicPr><pic:cNvPr id="0" name="%[4]s"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" r:embed="%[5]s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%[1]d" cy="%[2]d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
		`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r>`,
		cx, cy, docPrID, esc.String(), relID)
}

func escapeAttr(w io.Writer, s string) error {
	r := strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", `"`, "&quot;")
	_, err := io.WriteString(w, r.Replace(s))
	return err
}

func addRelationships(rels string, media []*mediaPart) string {
	var sb strings.Builder
	for _, part := range media {
		fmt.Fprintf(&sb, `<Relationship Id="%s" Type="%s" Target="%s"/>`,
			part.relID, imageRelType, strings.TrimPrefix(part.partName, "word/"))
	}
	idx := strings.LastIndex(rels, "</Relationships>")
	if idx < 0 {
		return rels
	}
	return rels[:idx] + sb.String() + rels[idx:]
}

func addContentTypes(types string, media []*mediaPart) string {
	lower := strings.ToLower(types)
	seen := make(map[string]bool)
	var sb strings.Builder
	for _, part := range media {
		if seen[part.extension] || strings.Contains(lower, fmt.Sprintf(`extension="%s"`, part.extension)) {
			continue
		}
		seen[part.extension] = true
		fmt.Fprintf(&sb, `<Default Extension="%s" ContentType="%s"/>`, part.extension, part.contentType)
	}
	idx := strings.LastIndex(types, "</Types>")
	if idx < 0 {
		return types
	}
	return types[:idx] + sb.String() + types[idx:]
}


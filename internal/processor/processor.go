package processor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/allanpk716/docx_mailmerge/internal/domain"
	"github.com/allanpk716/docx_mailmerge/internal/matcher"
	"github.com/allanpk716/docx_mailmerge/internal/record"
	"github.com/allanpk716/docx_mailmerge/pkg/docx"
)

// DefaultImageWidthEMU 默认图片宽度 1.5 英寸
const DefaultImageWidthEMU = docx.EMUPerInch * 3 / 2

// imageSuffix 以该后缀结尾的字段被视为图片字段
const imageSuffix = "image"

// Options 替换引擎参数
type Options struct {
	ImageWidthEMU int64
}

// Engine 占位符替换引擎，逐个文本片段替换，保留原有格式
type Engine struct {
	matcher    domain.PlaceholderMatcher
	imageWidth int64
	logger     *zap.Logger
}

// NewEngine 创建新的替换引擎
func NewEngine(opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	width := opts.ImageWidthEMU
	if width <= 0 {
		width = DefaultImageWidthEMU
	}
	return &Engine{
		matcher:    matcher.NewPlaceholderMatcher(),
		imageWidth: width,
		logger:     logger,
	}
}

// IsImageField 判断字段是否为图片字段
func IsImageField(name string) bool {
	return strings.HasSuffix(record.CanonicalKey(name), imageSuffix)
}

// ProcessDocument 打开模板副本，替换后保存到 outputPath，props 写入文档自定义属性
func (e *Engine) ProcessDocument(ctx context.Context, tpl *docx.Template, fields domain.FieldLookup, outputPath string, props ...docx.Property) (domain.Stats, error) {
	if err := ctx.Err(); err != nil {
		return domain.Stats{}, err
	}
	if outputPath == "" {
		return domain.Stats{}, fmt.Errorf("输出路径不能为空")
	}

	doc, err := tpl.Open()
	if err != nil {
		return domain.Stats{}, fmt.Errorf("打开模板失败: %w", err)
	}
	defer doc.Close()

	stats, err := e.Apply(doc, fields)
	if err != nil {
		return stats, err
	}

	for _, p := range props {
		doc.SetProperty(p.Name, p.Value)
	}

	if err := doc.SaveAs(outputPath); err != nil {
		return stats, err
	}

	e.logger.Debug("文档处理完成", zap.String("output", outputPath), zap.Int("replacements", stats.Replacements))
	return stats, nil
}

// Apply 在文档上执行替换，先正文段落再表格段落
func (e *Engine) Apply(doc *docx.Document, fields domain.FieldLookup) (domain.Stats, error) {
	var body, tables []*docx.Segment
	for _, seg := range doc.Segments() {
		if seg.InTable() {
			tables = append(tables, seg)
		} else {
			body = append(body, seg)
		}
	}

	images := make(map[string]*docx.Image)
	var stats domain.Stats

	if err := e.processParagraphs(doc, body, fields, images, &stats); err != nil {
		return stats, err
	}
	if err := e.processTables(doc, tables, fields, images, &stats); err != nil {
		return stats, err
	}

	stats.Unresolved = dedupe(stats.Unresolved)
	return stats, nil
}

// processParagraphs 处理正文段落中的占位符
func (e *Engine) processParagraphs(doc *docx.Document, segs []*docx.Segment, fields domain.FieldLookup, images map[string]*docx.Image, stats *domain.Stats) error {
	for _, seg := range segs {
		if err := e.processSegment(doc, seg, fields, images, stats); err != nil {
			return err
		}
	}
	return nil
}

// processTables 处理表格单元格中的占位符
func (e *Engine) processTables(doc *docx.Document, segs []*docx.Segment, fields domain.FieldLookup, images map[string]*docx.Image, stats *domain.Stats) error {
	before := stats.Replacements
	for _, seg := range segs {
		if err := e.processSegment(doc, seg, fields, images, stats); err != nil {
			return err
		}
	}
	if len(segs) > 0 {
		e.logger.Debug("表格处理完成", zap.Int("segments", len(segs)), zap.Int("replacements", stats.Replacements-before))
	}
	return nil
}

// processSegment 对一个片段的文本快照做一次从左到右的扫描替换
func (e *Engine) processSegment(doc *docx.Document, seg *docx.Segment, fields domain.FieldLookup, images map[string]*docx.Image, stats *domain.Stats) error {
	text := doc.Text(seg)
	if !strings.Contains(text, "{") {
		return nil
	}

	for _, tok := range matcher.FindTokens(text) {
		if _, ok := fields.Get(tok.Name); !ok {
			stats.Unresolved = append(stats.Unresolved, tok.Name)
		}
	}

	matches := e.matcher.FindMatches(text, fields)
	if len(matches) == 0 {
		return nil
	}

	kept := make([]domain.Match, 0, len(matches))
	var pending []*docx.Image
	for _, m := range matches {
		if !IsImageField(m.Name) {
			kept = append(kept, m)
			continue
		}
		// 图片路径不受 {NAME} 形式的大写转换影响
		path, _ := fields.Get(m.Name)
		img := e.resolveImage(path, images)
		if img == nil || !seg.InRun() {
			// 图片无法解析时保留占位符原文
			continue
		}
		m.Replacement = ""
		kept = append(kept, m)
		pending = append(pending, img)
	}
	if len(kept) == 0 {
		return nil
	}

	stats.Segments++
	if seg.Editable() {
		if err := doc.SetText(seg, e.matcher.ReplaceMatches(text, kept)); err != nil {
			return fmt.Errorf("替换文本失败: %w", err)
		}
	}
	stats.Replacements += len(kept) - len(pending)

	// matches 按位置倒序，插入时恢复出现顺序
	for i := len(pending) - 1; i >= 0; i-- {
		if err := doc.InsertImageAfter(seg, pending[i], e.imageWidth); err != nil {
			return fmt.Errorf("插入图片失败: %w", err)
		}
		stats.Images++
	}
	return nil
}

// resolveImage 加载图片字段的值，路径不存在或无法识别时返回 nil
func (e *Engine) resolveImage(path string, cache map[string]*docx.Image) *docx.Image {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if img, ok := cache[path]; ok {
		return img
	}

	var img *docx.Image
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		loaded, err := docx.LoadImage(path)
		if err != nil {
			e.logger.Warn("图片无法识别，保留占位符", zap.String("path", path), zap.Error(err))
		} else {
			img = loaded
		}
	}
	cache[path] = img
	return img
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	out := make([]string, 0, len(names))
	for _, n := range names {
		key := strings.ToLower(n)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}

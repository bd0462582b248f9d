package processor

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allanpk716/docx_mailmerge/internal/record"
	"github.com/allanpk716/docx_mailmerge/internal/testsupport"
	"github.com/allanpk716/docx_mailmerge/pkg/docx"
)

func openDoc(t *testing.T, body ...string) *docx.Document {
	t.Helper()
	tpl, err := docx.ParseTemplate("letter.docx", testsupport.BuildDocx(t, body...))
	require.NoError(t, err)
	doc, err := tpl.Open()
	require.NoError(t, err)
	t.Cleanup(func() { doc.Close() })
	return doc
}

func texts(doc *docx.Document) []string {
	var out []string
	for _, seg := range doc.Segments() {
		out = append(out, doc.Text(seg))
	}
	return out
}

func TestNewEngine(t *testing.T) {
	e := NewEngine(Options{}, nil)
	require.NotNil(t, e)
	assert.Equal(t, int64(1371600), e.imageWidth)
}

func TestIsImageField(t *testing.T) {
	assert.True(t, IsImageField("photo_image"))
	assert.True(t, IsImageField("Signature Image"))
	assert.True(t, IsImageField("image"))
	assert.False(t, IsImageField("images"))
	assert.False(t, IsImageField("name"))
}

func TestEngine_TextFields(t *testing.T) {
	doc := openDoc(t,
		testsupport.Paragraph("Dear {name},"),
		testsupport.Runs("Program: ", "{{program}}", " / {PROGRAM}"),
		testsupport.Paragraph("Unknown {missing} stays"),
	)
	rec := record.FromMap(map[string]string{"name": "Ali", "program": "lt750"})

	stats, err := NewEngine(Options{}, nil).Apply(doc, rec)
	require.NoError(t, err)

	assert.Equal(t, []string{"Dear Ali,", "Program: ", "lt750", " / LT750", "Unknown {missing} stays"}, texts(doc))
	assert.Equal(t, 3, stats.Replacements)
	assert.Equal(t, []string{"missing"}, stats.Unresolved)
}

func TestEngine_MultiplePlaceholdersInOneRun(t *testing.T) {
	doc := openDoc(t, testsupport.Paragraph("{name} ({NAME}) - {{name}} - {date}"))
	rec := record.FromMap(map[string]string{"name": "Siti", "date": "1 May 2025"})

	_, err := NewEngine(Options{}, nil).Apply(doc, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"Siti (SITI) - Siti - 1 May 2025"}, texts(doc))
}

func TestEngine_TableCells(t *testing.T) {
	doc := openDoc(t,
		testsupport.Paragraph("Body {name}"),
		testsupport.Table([]string{"Name", "{name}"}, []string{"Degree", "{jenis_degree}"}),
	)
	rec := record.FromMap(map[string]string{"name": "Ali", "jenis_degree": "PhD"})

	stats, err := NewEngine(Options{}, nil).Apply(doc, rec)
	require.NoError(t, err)

	_, tables := doc.ParagraphTexts()
	assert.Equal(t, []string{"Name", "Ali", "Degree", "PhD"}, tables)
	assert.Equal(t, 3, stats.Replacements)
	assert.Equal(t, 3, stats.Segments)
}

func TestEngine_SplitPlaceholderNotMatched(t *testing.T) {
	doc := openDoc(t, testsupport.Runs("{na", "me}"))
	rec := record.FromMap(map[string]string{"name": "Ali"})

	stats, err := NewEngine(Options{}, nil).Apply(doc, rec)
	require.NoError(t, err)
	assert.Equal(t, []string{"{na", "me}"}, texts(doc))
	assert.False(t, doc.Modified())
	assert.Zero(t, stats.Replacements)
}

func TestEngine_Idempotent(t *testing.T) {
	doc := openDoc(t, testsupport.Paragraph("Hi {name}, note: {note}"))
	rec := record.FromMap(map[string]string{"name": "Ali", "note": "use {name} here"})
	e := NewEngine(Options{}, nil)

	_, err := e.Apply(doc, rec)
	require.NoError(t, err)
	first := texts(doc)
	assert.Equal(t, []string{"Hi Ali, note: use {name} here"}, first)

	// 第二次替换会处理值中带入的占位符，但对不含占位符的文档没有影响
	doc2 := openDoc(t, testsupport.Paragraph("Hi {name}"))
	_, err = e.Apply(doc2, rec)
	require.NoError(t, err)
	once := texts(doc2)
	_, err = e.Apply(doc2, rec)
	require.NoError(t, err)
	assert.Equal(t, once, texts(doc2))
}

func TestEngine_ImageField(t *testing.T) {
	dir := t.TempDir()
	imgPath := testsupport.WritePNG(t, dir, "photo.png", 30, 60)

	doc := openDoc(t, testsupport.Paragraph("Photo: {photo_image} end"))
	rec := record.FromMap(map[string]string{"photo_image": imgPath})

	stats, err := NewEngine(Options{ImageWidthEMU: 914400}, nil).Apply(doc, rec)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Images)
	assert.Equal(t, []string{"Photo:  end"}, texts(doc))

	data, err := doc.Bytes()
	require.NoError(t, err)
	xml := testsupport.ReadPart(t, data, "word/document.xml")
	assert.NotContains(t, xml, "{photo_image}")
	assert.Contains(t, xml, `<wp:extent cx="914400" cy="1828800"/>`)
}

func TestEngine_ImageFieldUpperCaseToken(t *testing.T) {
	dir := t.TempDir()
	imgPath := testsupport.WritePNG(t, dir, "photo.png", 30, 60)

	doc := openDoc(t, testsupport.Paragraph("Photo: {PHOTO_IMAGE} end"))
	rec := record.FromMap(map[string]string{"photo_image": imgPath})

	stats, err := NewEngine(Options{}, nil).Apply(doc, rec)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Images)
	assert.Equal(t, []string{"Photo:  end"}, texts(doc))
}

func TestEngine_ImageFieldMissing(t *testing.T) {
	dir := t.TempDir()
	fake := testsupport.WriteDocx(t, dir, "not-an-image.png", testsupport.Paragraph("x"))

	tests := []struct {
		name  string
		value string
	}{
		{"nonexistent path", filepath.Join(dir, "missing.png")},
		{"empty value", ""},
		{"directory", dir},
		{"undecodable file", fake},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := openDoc(t, testsupport.Paragraph("Photo: {photo_image}"), testsupport.Paragraph("{name}"))
			rec := record.FromMap(map[string]string{"photo_image": tt.value, "name": "Ali"})

			stats, err := NewEngine(Options{}, nil).Apply(doc, rec)
			require.NoError(t, err)
			assert.Zero(t, stats.Images)
			assert.Equal(t, []string{"Photo: {photo_image}", "Ali"}, texts(doc))

			data, err := doc.Bytes()
			require.NoError(t, err)
			assert.NotContains(t, testsupport.ReadPart(t, data, "word/document.xml"), "<w:drawing>")
		})
	}
}

func TestEngine_ProcessDocument(t *testing.T) {
	dir := t.TempDir()
	tpl, err := docx.ParseTemplate("letter.docx", testsupport.BuildDocx(t, testsupport.Paragraph("Dear {name}")))
	require.NoError(t, err)

	out := filepath.Join(dir, "Ali.docx")
	e := NewEngine(Options{}, nil)
	stats, err := e.ProcessDocument(context.Background(), tpl, record.FromMap(map[string]string{"name": "Ali"}), out,
		docx.Property{Name: "MailMergeRecord", Value: "Ali"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Replacements)

	props, err := docx.ReadProperties(mustRead(t, out))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"MailMergeRecord": "Ali"}, props)

	reopened, err := docx.ParseTemplate("Ali.docx", mustRead(t, out))
	require.NoError(t, err)
	doc, err := reopened.Open()
	require.NoError(t, err)
	defer doc.Close()
	body, _ := doc.ParagraphTexts()
	assert.Equal(t, []string{"Dear Ali"}, body)

	// 模板本身不被修改
	orig, err := tpl.Open()
	require.NoError(t, err)
	defer orig.Close()
	body, _ = orig.ParagraphTexts()
	assert.True(t, strings.Contains(body[0], "{name}"))

	_, err = e.ProcessDocument(context.Background(), tpl, record.New(), "")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.ProcessDocument(ctx, tpl, record.New(), out)
	assert.ErrorIs(t, err, context.Canceled)
}

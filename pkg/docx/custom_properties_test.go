package docx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allanpk716/docx_mailmerge/internal/testsupport"
)

func TestDocument_SetProperty(t *testing.T) {
	doc := openTemplate(t, testsupport.Paragraph("{name}"))
	doc.SetProperty("MailMergeTemplate", "offer.docx")
	doc.SetProperty("MailMergeRecord", "Row 1")
	doc.SetProperty("MailMergeRecord", "Ali & <co>")

	data, err := doc.Bytes()
	require.NoError(t, err)

	props, err := ReadProperties(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"MailMergeTemplate": "offer.docx",
		"MailMergeRecord":   "Ali & <co>",
	}, props)

	parts := testsupport.Parts(t, data)
	assert.Contains(t, parts["_rels/.rels"], customPropsRelType)
	assert.Contains(t, parts["_rels/.rels"], `Target="word/document.xml"`)
	assert.Contains(t, parts["[Content_Types].xml"], `PartName="/docProps/custom.xml"`)
	assert.Contains(t, parts["word/document.xml"], "{name}")

	_, err = ParseTemplate("out.docx", data)
	assert.NoError(t, err)
}

func TestDocument_NoPropertiesNoPart(t *testing.T) {
	doc := openTemplate(t, testsupport.Paragraph("x"))
	data, err := doc.Bytes()
	require.NoError(t, err)

	assert.NotContains(t, testsupport.Parts(t, data), customPropsPath)
	props, err := ReadProperties(data)
	require.NoError(t, err)
	assert.Empty(t, props)
}

func TestMergeCustomProps(t *testing.T) {
	existing := customPropsHeader +
		`<property fmtid="` + customPropsFmtID + `" pid="2" name="Count"><vt:i4>7</vt:i4></property>` +
		`<property fmtid="` + customPropsFmtID + `" pid="5" name="Owner"><vt:lpwstr>old</vt:lpwstr></property>` +
		customPropsFooter

	merged := mergeCustomProps(existing, []Property{{"Owner", "new"}, {"Batch", "b1"}})
	assert.Contains(t, merged, `name="Count"><vt:i4>7</vt:i4>`)
	assert.Contains(t, merged, `pid="5" name="Owner"><vt:lpwstr>new</vt:lpwstr>`)
	assert.Contains(t, merged, `pid="6" name="Batch"><vt:lpwstr>b1</vt:lpwstr>`)

	rebuilt := mergeCustomProps("<not xml", []Property{{"A", "1"}})
	assert.Contains(t, rebuilt, `pid="2" name="A"`)
}

func TestAddCustomPropsRelationship_Idempotent(t *testing.T) {
	once := addCustomPropsRelationship(emptyRelationships)
	assert.Equal(t, once, addCustomPropsRelationship(once))

	types := `<Types></Types>`
	withOverride := addCustomPropsOverride(types)
	assert.Equal(t, withOverride, addCustomPropsOverride(withOverride))
}

package viva

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allanpk716/docx_mailmerge/internal/batch"
	"github.com/allanpk716/docx_mailmerge/internal/dates"
	"github.com/allanpk716/docx_mailmerge/internal/naming"
	"github.com/allanpk716/docx_mailmerge/internal/processor"
	"github.com/allanpk716/docx_mailmerge/internal/record"
	"github.com/allanpk716/docx_mailmerge/internal/testsupport"
)

// templates 同时实现模板来源和模板定位
type templates map[string][]byte

func (t templates) OpenTemplate(_ context.Context, name string) (io.ReadCloser, error) {
	data, ok := t[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (t templates) FindTemplate(_ context.Context, choice string) (string, error) {
	for name := range t {
		if strings.Contains(strings.ToLower(name), strings.ToLower(choice)) {
			return name, nil
		}
	}
	return "", errors.New("not found")
}

func students() []record.Raw {
	return []record.Raw{
		{{Key: "Nama", Value: "Ali"}, {Key: "Matric", Value: "A1"}},
		{{Key: "Nama", Value: "Siti"}, {Key: "Matric", Value: "A2"}, {Key: "Template", Value: "pass"}},
		{{Key: "Nama", Value: ""}, {Key: "Matric", Value: "A3"}},
		{{Key: "Nama", Value: "Chong"}, {Key: "Matric", Value: "A4"}},
	}
}

func TestNewRoster(t *testing.T) {
	r, err := NewRoster(students(), Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ali", "Siti", "", "Chong"}, r.Names())
	assert.Equal(t, "pass", r.Students()[1].Assignment.Template)

	_, err = NewRoster([]record.Raw{{{Key: "matric", Value: "A1"}}}, Options{}, nil)
	assert.ErrorIs(t, err, ErrNoNameColumn)

	_, err = NewRoster(nil, Options{}, nil)
	assert.ErrorIs(t, err, ErrNoStudents)
}

func TestAssign(t *testing.T) {
	r, err := NewRoster(students(), Options{Programs: []string{"LT750", "LT780"}, Degrees: []string{"Masters", "PhD"}}, nil)
	require.NoError(t, err)

	require.NoError(t, r.Assign(Assignment{Student: "ali", Template: "pass", Program: "lt750", Degree: "PhD", Date: "2024-03-01"}))
	a := r.Students()[0].Assignment
	assert.Equal(t, "pass", a.Template)
	assert.Equal(t, "lt750", a.Program)

	// 空字段不覆盖已有值
	require.NoError(t, r.Assign(Assignment{Student: "Ali", Degree: "Masters"}))
	a = r.Students()[0].Assignment
	assert.Equal(t, "pass", a.Template)
	assert.Equal(t, "Masters", a.Degree)

	assert.ErrorIs(t, r.Assign(Assignment{Student: "Nobody"}), ErrUnknownStudent)
	err = r.Assign(Assignment{Student: "Ali", Program: "LT999"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "program 'LT999' is not one of LT750, LT780")
}

func TestAssign_DuplicateNames(t *testing.T) {
	rows := []record.Raw{
		{{Key: "Nama", Value: "Ali"}, {Key: "Matric", Value: "A1"}},
		{{Key: "Nama", Value: "Siti"}, {Key: "Matric", Value: "A2"}},
		{{Key: "Nama", Value: "ali"}, {Key: "Matric", Value: "A3"}},
	}
	r, err := NewRoster(rows, Options{}, nil)
	require.NoError(t, err)

	err = r.Assign(Assignment{Student: "Ali", Template: "pass"})
	assert.ErrorIs(t, err, ErrAmbiguousStudent)
	assert.Contains(t, err.Error(), "rows 1, 3")

	require.NoError(t, r.Assign(Assignment{Row: 1, Student: "Ali", Template: "pass"}))
	require.NoError(t, r.Assign(Assignment{Row: 3, Template: "fail"}))
	assert.Equal(t, "pass", r.Students()[0].Assignment.Template)
	assert.Equal(t, "fail", r.Students()[2].Assignment.Template)

	assert.ErrorIs(t, r.Assign(Assignment{Row: 2, Student: "Ali"}), ErrUnknownStudent)
	assert.ErrorIs(t, r.Assign(Assignment{Row: 9}), ErrUnknownStudent)

	// 导出的分配表带行号，重新载入后仍能区分同名学生
	var buf bytes.Buffer
	require.NoError(t, WriteSheet(&buf, r.Sheet()))
	assert.Contains(t, buf.String(), "row: 3")
	sheet, err := LoadSheet(&buf)
	require.NoError(t, err)

	fresh, err := NewRoster(rows, Options{}, nil)
	require.NoError(t, err)
	assert.Empty(t, fresh.ApplySheet(sheet))
	assert.Equal(t, "pass", fresh.Students()[0].Assignment.Template)
	assert.Equal(t, "fail", fresh.Students()[2].Assignment.Template)
}

func TestSheetRoundTrip(t *testing.T) {
	sheet, err := LoadSheet(strings.NewReader(`
assignments:
  - student: Ali
    template: fail
    program: LT780
  - student: Ghost
    template: pass
`))
	require.NoError(t, err)
	require.Len(t, sheet.Assignments, 2)

	r, err := NewRoster(students(), Options{}, nil)
	require.NoError(t, err)
	errs := r.ApplySheet(sheet)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrUnknownStudent)

	var buf bytes.Buffer
	require.NoError(t, WriteSheet(&buf, r.Sheet()))
	assert.Contains(t, buf.String(), "student: Ali")
	assert.Contains(t, buf.String(), "template: fail")
	assert.Contains(t, buf.String(), "program: LT780")

	_, err = LoadSheet(strings.NewReader("assignments: [unclosed"))
	assert.Error(t, err)
}

func TestJobs(t *testing.T) {
	tpls := templates{"Viva Pass.docx": nil}
	r, err := NewRoster(students(), Options{}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Assign(Assignment{Student: "Ali", Template: "missing", Date: "45123"}))
	require.NoError(t, r.Assign(Assignment{Student: "Siti", Program: "LT750", Degree: "PhD", Date: "1 March 2024"}))

	jobs := r.Jobs(context.Background(), tpls)
	require.Len(t, jobs, 4)

	assert.EqualError(t, jobs[0].Err, "Template 'missing' not found.")
	assert.Equal(t, "Ali", jobs[0].Identity)

	require.NoError(t, jobs[1].Err)
	assert.Equal(t, "Viva Pass.docx", jobs[1].Template)
	v, _ := jobs[1].Raw.Get("jenis_degree")
	assert.Equal(t, "PhD", v)
	v, _ = jobs[1].Raw.Get("tarikh_viva")
	assert.Equal(t, "1 March 2024", v)
	v, _ = jobs[1].Raw.Get("name")
	assert.Equal(t, "Siti", v)

	assert.EqualError(t, jobs[2].Err, "Missing student name.")
	assert.Equal(t, "Row 3", jobs[2].Identity)
	assert.EqualError(t, jobs[3].Err, "No template selected for Chong.")
}

func TestGenerateVivaLetters(t *testing.T) {
	tpls := templates{
		"Viva Pass.docx": testsupport.BuildDocx(t,
			testsupport.Paragraph("{NAMA} ({matric})"),
			testsupport.Paragraph("{jenis_degree} in {program} on {tarikh_viva}"),
		),
	}
	r, err := NewRoster(students(), Options{}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Assign(Assignment{Student: "Siti", Program: "LT750", Degree: "PhD", Date: "2024-03-01"}))

	gen := batch.NewGenerator(
		tpls,
		record.NewNormalizer(record.Options{}, dates.NewCoercer(), nil),
		processor.NewEngine(processor.Options{}, nil),
		naming.NewResolver(0),
		batch.Options{WorkDir: t.TempDir()},
		nil,
	)
	res := gen.Generate(context.Background(), batch.Request{
		Pattern:       "{matric}_{name}",
		Jobs:          r.Jobs(context.Background(), tpls),
		ArchivePrefix: ArchivePrefix,
	})
	t.Cleanup(func() { res.Cleanup() })

	require.True(t, res.Success(), res.Message)
	require.Len(t, res.Outputs, 1)
	assert.Equal(t, "A2_Siti.docx", res.Outputs[0].Name)
	assert.Len(t, res.Errors, 3)
	assert.Contains(t, res.ArchivePath, "viva_letters_")
	assert.Contains(t, res.Message, "✅ 1 letter generated")
	assert.Contains(t, res.Message, "No template selected for Ali.")

	names := testsupport.ZipNames(t, res.ArchivePath)
	assert.Equal(t, []string{"A2_Siti.docx"}, names)
}

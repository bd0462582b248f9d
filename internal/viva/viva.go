// Package viva 生成口试结果信：每个学生单独指定模板、专业、学位和日期
package viva

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/allanpk716/docx_mailmerge/internal/batch"
	"github.com/allanpk716/docx_mailmerge/internal/domain"
	"github.com/allanpk716/docx_mailmerge/internal/record"
)

// ArchivePrefix 口试信归档文件名前缀
const ArchivePrefix = "viva_letters"

var (
	// ErrNoNameColumn 学生数据缺少姓名列
	ErrNoNameColumn = errors.New("File must include a 'nama' or 'name' column.")
	// ErrNoStudents 没有加载学生
	ErrNoStudents = errors.New("No students loaded.")
	// ErrUnknownStudent 分配表中的学生不在名单中
	ErrUnknownStudent = errors.New("student not found")
	// ErrAmbiguousStudent 多个学生同名，需要用 row 指定
	ErrAmbiguousStudent = errors.New("student name is not unique")
)

// Assignment 一个学生的分配信息，Row 是学生在名单中的行号 (从 1 开始)，同名学生靠它区分
type Assignment struct {
	Row      int    `yaml:"row,omitempty"`
	Student  string `yaml:"student"`
	Template string `yaml:"template"`
	Program  string `yaml:"program,omitempty"`
	Degree   string `yaml:"degree,omitempty"`
	Date     string `yaml:"date,omitempty"`
}

// Sheet 分配表文件
type Sheet struct {
	Assignments []Assignment `yaml:"assignments"`
}

// LoadSheet 读取 YAML 分配表
func LoadSheet(r io.Reader) (*Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("读取分配表失败: %w", err)
	}
	var sheet Sheet
	if err := yaml.Unmarshal(data, &sheet); err != nil {
		return nil, fmt.Errorf("解析分配表失败: %w", err)
	}
	return &sheet, nil
}

// WriteSheet 把分配表写成 YAML
func WriteSheet(w io.Writer, sheet *Sheet) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sheet); err != nil {
		return fmt.Errorf("写入分配表失败: %w", err)
	}
	return enc.Close()
}

// Student 名单中的一个学生
type Student struct {
	Name       string
	Raw        record.Raw
	Assignment Assignment
}

// Options 可选的专业和学位，为空时不限制
type Options struct {
	Programs []string
	Degrees  []string
}

// Roster 学生名单和分配信息
type Roster struct {
	students []*Student
	opts     Options
	logger   *zap.Logger
}

// NewRoster 从学生数据创建名单，数据必须包含 name 或 nama 列
func NewRoster(rows []record.Raw, opts Options, logger *zap.Logger) (*Roster, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(rows) == 0 {
		return nil, ErrNoStudents
	}

	hasName := false
	for _, row := range rows {
		for _, p := range row {
			if k := record.CanonicalKey(p.Key); k == "name" || k == "nama" {
				hasName = true
			}
		}
	}
	if !hasName {
		return nil, ErrNoNameColumn
	}

	r := &Roster{opts: opts, logger: logger}
	for i, row := range rows {
		s := &Student{Raw: append(record.Raw(nil), row...)}
		s.Name = firstValue(row, "name", "nama")
		s.Assignment = Assignment{
			Row:      i + 1,
			Student:  s.Name,
			Template: firstValue(row, "template"),
			Program:  firstValue(row, "program"),
			Degree:   firstValue(row, "degree", "jenis_degree"),
			Date:     firstValue(row, "tarikh_viva", "date"),
		}
		r.students = append(r.students, s)
	}
	return r, nil
}

// Students 返回名单
func (r *Roster) Students() []*Student {
	return r.students
}

// Names 返回全部学生姓名
func (r *Roster) Names() []string {
	names := make([]string, 0, len(r.students))
	for _, s := range r.students {
		names = append(names, s.Name)
	}
	return names
}

// Assign 更新一个学生的分配信息，空字段保持原值
func (r *Roster) Assign(a Assignment) error {
	s, err := r.find(a)
	if err != nil {
		return err
	}
	if err := checkOption("program", a.Program, r.opts.Programs); err != nil {
		return err
	}
	if err := checkOption("degree", a.Degree, r.opts.Degrees); err != nil {
		return err
	}

	if v := strings.TrimSpace(a.Template); v != "" {
		s.Assignment.Template = v
	}
	if v := strings.TrimSpace(a.Program); v != "" {
		s.Assignment.Program = v
	}
	if v := strings.TrimSpace(a.Degree); v != "" {
		s.Assignment.Degree = v
	}
	if v := strings.TrimSpace(a.Date); v != "" {
		s.Assignment.Date = v
	}
	return nil
}

// ApplySheet 依次应用分配表，返回每条失败的原因
func (r *Roster) ApplySheet(sheet *Sheet) []error {
	if sheet == nil {
		return nil
	}
	var errs []error
	for _, a := range sheet.Assignments {
		if err := r.Assign(a); err != nil {
			r.logger.Warn("分配失败", zap.String("student", a.Student), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errs
}

// Sheet 导出当前的分配信息
func (r *Roster) Sheet() *Sheet {
	sheet := &Sheet{}
	for _, s := range r.students {
		sheet.Assignments = append(sheet.Assignments, s.Assignment)
	}
	return sheet
}

// Jobs 为每个学生创建生成任务，模板通过 finder 定位，预检失败的学生带上错误
func (r *Roster) Jobs(ctx context.Context, finder domain.TemplateFinder) []batch.Job {
	jobs := make([]batch.Job, 0, len(r.students))
	for i, s := range r.students {
		identity := s.Name
		if identity == "" {
			identity = fmt.Sprintf("Row %d", i+1)
		}
		fail := func(err error) {
			jobs = append(jobs, batch.Job{Identity: identity, Err: err})
		}

		if s.Name == "" {
			fail(errors.New("Missing student name."))
			continue
		}
		a := s.Assignment
		if strings.TrimSpace(a.Template) == "" {
			fail(fmt.Errorf("No template selected for %s.", s.Name))
			continue
		}
		tpl, err := finder.FindTemplate(ctx, a.Template)
		if err != nil {
			r.logger.Debug("模板未找到", zap.String("student", s.Name), zap.String("template", a.Template), zap.Error(err))
			fail(fmt.Errorf("Template '%s' not found.", a.Template))
			continue
		}

		raw := append(record.Raw(nil), s.Raw...)
		raw = set(raw, s.Name, "name", "nama")
		if a.Program != "" {
			raw = set(raw, a.Program, "program")
		}
		if a.Degree != "" {
			raw = set(raw, a.Degree, "degree", "jenis_degree")
		}
		if a.Date != "" {
			raw = set(raw, a.Date, "date", "tarikh", "tarikh_submit", "tarikh_viva")
		}
		jobs = append(jobs, batch.Job{Template: tpl, Raw: raw, Identity: s.Name})
	}
	return jobs
}

// find 按行号或姓名定位学生，同名学生必须给出行号
func (r *Roster) find(a Assignment) (*Student, error) {
	want := strings.ToLower(strings.TrimSpace(a.Student))

	if a.Row != 0 {
		if a.Row < 0 || a.Row > len(r.students) {
			return nil, fmt.Errorf("%w: row %d", ErrUnknownStudent, a.Row)
		}
		s := r.students[a.Row-1]
		if want != "" && strings.ToLower(strings.TrimSpace(s.Name)) != want {
			return nil, fmt.Errorf("%w: '%s' at row %d", ErrUnknownStudent, a.Student, a.Row)
		}
		return s, nil
	}

	if want == "" {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownStudent, a.Student)
	}
	var (
		found *Student
		rows  []string
	)
	for i, s := range r.students {
		if strings.ToLower(strings.TrimSpace(s.Name)) == want {
			if found == nil {
				found = s
			}
			rows = append(rows, strconv.Itoa(i+1))
		}
	}
	switch {
	case found == nil:
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownStudent, a.Student)
	case len(rows) > 1:
		return nil, fmt.Errorf("%w: '%s' is on rows %s, set 'row'", ErrAmbiguousStudent, a.Student, strings.Join(rows, ", "))
	}
	return found, nil
}

func checkOption(field, value string, allowed []string) error {
	value = strings.TrimSpace(value)
	if value == "" || len(allowed) == 0 {
		return nil
	}
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return nil
		}
	}
	return fmt.Errorf("%s '%s' is not one of %s", field, value, strings.Join(allowed, ", "))
}

func firstValue(row record.Raw, keys ...string) string {
	for _, k := range keys {
		if v, ok := row.Get(k); ok {
			if s := strings.TrimSpace(record.Stringify(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

// set 覆盖已有字段，不存在的字段追加到末尾
func set(raw record.Raw, value string, keys ...string) record.Raw {
	for _, k := range keys {
		want := record.CanonicalKey(k)
		found := false
		for i := range raw {
			if record.CanonicalKey(raw[i].Key) == want {
				raw[i].Value = value
				found = true
			}
		}
		if !found {
			raw = append(raw, record.Pair{Key: k, Value: value})
		}
	}
	return raw
}

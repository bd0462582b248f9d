// Package batch 把一份模板和多行数据合并成多份文档并打包
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/allanpk716/docx_mailmerge/internal/domain"
	"github.com/allanpk716/docx_mailmerge/internal/naming"
	"github.com/allanpk716/docx_mailmerge/internal/processor"
	"github.com/allanpk716/docx_mailmerge/internal/record"
	"github.com/allanpk716/docx_mailmerge/pkg/docx"
)

var (
	// ErrNoTemplate 记录没有指定模板
	ErrNoTemplate = errors.New("no template selected")
	// ErrNoRecords 请求中没有任何记录
	ErrNoRecords = errors.New("no records to process")
)

// DefaultArchivePrefix 默认归档文件名前缀
const DefaultArchivePrefix = "letters"

// 写入生成文档的自定义属性名称
const (
	PropertyTemplate = "MailMergeTemplate"
	PropertyRecord   = "MailMergeRecord"
)

// Job 一条待生成的记录
type Job struct {
	Template string     // 为空时使用 Request.Template
	Raw      record.Raw // 原始字段
	Identity string     // 预先确定的标识，用于 Err 非空时的错误信息
	Err      error      // 预检失败的原因，非空时直接记为该记录的错误
}

// Request 一次生成请求
type Request struct {
	Template      string
	Pattern       string
	Jobs          []Job
	ArchivePrefix string
}

// NewJobs 用同一模板为每行数据创建任务
func NewJobs(rows []record.Raw) []Job {
	jobs := make([]Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, Job{Raw: row})
	}
	return jobs
}

// RecordError 单条记录的失败信息
type RecordError struct {
	Index    int
	Identity string
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s: %v", e.Identity, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// Output 生成成功的文档
type Output struct {
	Index    int
	Identity string
	Name     string
	Path     string
	Stats    domain.Stats
}

// Options 生成器参数
type Options struct {
	WorkDir           string
	RequiredFields    []string
	ErrorSummaryLimit int
}

// Generator 批量生成器
type Generator struct {
	source       domain.TemplateSource
	normalizer   *record.Normalizer
	engine       *processor.Engine
	resolver     *naming.Resolver
	workDir      string
	required     []string
	summaryLimit int
	archive      func(scope, prefix string, outputs []Output) (string, error)
	logger       *zap.Logger
}

// NewGenerator 创建批量生成器
func NewGenerator(source domain.TemplateSource, normalizer *record.Normalizer, engine *processor.Engine, resolver *naming.Resolver, opts Options, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	required := opts.RequiredFields
	if required == nil {
		required = []string{"name"}
	}
	limit := opts.ErrorSummaryLimit
	if limit <= 0 {
		limit = 5
	}
	return &Generator{
		source:       source,
		normalizer:   normalizer,
		engine:       engine,
		resolver:     resolver,
		workDir:      opts.WorkDir,
		required:     required,
		summaryLimit: limit,
		archive:      writeArchive,
		logger:       logger,
	}
}

// run 是一次请求的执行状态
type run struct {
	g         *Generator
	ctx       context.Context
	req       Request
	scope     string
	templates map[string]*loaded
	used      map[string]bool
}

type loaded struct {
	tpl *docx.Template
	err error
}

func (g *Generator) newRun(ctx context.Context, req Request) (*run, error) {
	if g.workDir != "" {
		if err := os.MkdirAll(g.workDir, 0o755); err != nil {
			return nil, fmt.Errorf("创建工作目录失败: %w", err)
		}
	}
	scope, err := os.MkdirTemp(g.workDir, "mailmerge-")
	if err != nil {
		return nil, fmt.Errorf("创建临时目录失败: %w", err)
	}
	return &run{
		g: g,
		// 批量任务开始后不响应取消
		ctx:       context.WithoutCancel(ctx),
		req:       req,
		scope:     scope,
		templates: make(map[string]*loaded),
		used:      make(map[string]bool),
	}, nil
}

// template 加载模板，同一请求内只读取一次
func (r *run) template(name string) (*docx.Template, error) {
	if l, ok := r.templates[name]; ok {
		return l.tpl, l.err
	}

	l := &loaded{}
	rc, err := r.g.source.OpenTemplate(r.ctx, name)
	if err != nil {
		l.err = fmt.Errorf("template '%s' could not be loaded: %w", name, err)
	} else {
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			l.err = fmt.Errorf("template '%s' could not be read: %w", name, err)
		} else if l.tpl, err = docx.ParseTemplate(name, data); err != nil {
			l.err = fmt.Errorf("template '%s' is not a valid document: %w", name, err)
		}
	}
	r.templates[name] = l
	return l.tpl, l.err
}

// uniqueName 同一请求内文件名重复时追加 _2、_3
func (r *run) uniqueName(stem string) string {
	name := stem
	for i := 2; r.used[strings.ToLower(name)]; i++ {
		name = fmt.Sprintf("%s_%d", stem, i)
	}
	r.used[strings.ToLower(name)] = true
	return name
}

// process 生成一条记录对应的文档
func (r *run) process(index int, job Job) (*Output, *RecordError) {
	if job.Err != nil {
		identity := job.Identity
		if identity == "" {
			identity = fmt.Sprintf("Row %d", index+1)
		}
		return nil, &RecordError{Index: index, Identity: identity, Err: job.Err}
	}

	rec := r.g.normalizer.Normalize(job.Raw)
	identity := job.Identity
	if identity == "" {
		identity = rec.Identity(index)
	}
	fail := func(err error) (*Output, *RecordError) {
		return nil, &RecordError{Index: index, Identity: identity, Err: err}
	}

	for _, field := range r.g.required {
		if !rec.Has(field) {
			return fail(fmt.Errorf("missing required field '%s'", field))
		}
	}

	name := job.Template
	if name == "" {
		name = r.req.Template
	}
	if strings.TrimSpace(name) == "" {
		return fail(ErrNoTemplate)
	}

	tpl, err := r.template(name)
	if err != nil {
		return fail(err)
	}

	stem := r.uniqueName(r.g.resolver.Resolve(r.req.Pattern, tpl.BaseName(), rec))
	path := filepath.Join(r.scope, stem+".docx")

	stats, err := r.g.engine.ProcessDocument(r.ctx, tpl, rec, path,
		docx.Property{Name: PropertyTemplate, Value: tpl.Name()},
		docx.Property{Name: PropertyRecord, Value: identity},
	)
	if err != nil {
		return fail(err)
	}

	return &Output{Index: index, Identity: identity, Name: stem + ".docx", Path: path, Stats: stats}, nil
}

package batch

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Result 批量生成的结果
type Result struct {
	Outputs     []Output
	Errors      []*RecordError
	ArchivePath string
	Message     string
	scope       string
}

// Success 至少生成了一份文档并且已打包
func (r *Result) Success() bool { return len(r.Outputs) > 0 && r.ArchivePath != "" }

// Cleanup 删除本次请求的临时目录，包括归档文件
func (r *Result) Cleanup() error {
	if r == nil || r.scope == "" {
		return nil
	}
	err := os.RemoveAll(r.scope)
	r.scope = ""
	return err
}

// Generate 依次处理所有记录，单条失败不影响其他记录，最后打包成 zip
func (g *Generator) Generate(ctx context.Context, req Request) *Result {
	if len(req.Jobs) == 0 {
		return &Result{Message: "❌ " + capitalize(ErrNoRecords.Error())}
	}

	r, err := g.newRun(ctx, req)
	if err != nil {
		return &Result{Message: fmt.Sprintf("❌ Generation failed: %v", err)}
	}

	res := &Result{scope: r.scope}
	for i, job := range req.Jobs {
		out, recErr := r.process(i, job)
		if recErr != nil {
			g.logger.Warn("记录处理失败",
				zap.Int("index", recErr.Index),
				zap.String("record", recErr.Identity),
				zap.Error(recErr.Err))
			res.Errors = append(res.Errors, recErr)
			continue
		}
		res.Outputs = append(res.Outputs, *out)
	}

	if len(res.Outputs) == 0 {
		res.Message = g.failureMessage(res.Errors)
		g.logger.Info("批量生成失败", zap.Int("errors", len(res.Errors)))
		return res
	}

	prefix := req.ArchivePrefix
	if prefix == "" {
		prefix = DefaultArchivePrefix
	}
	archive, err := g.archive(r.scope, prefix, res.Outputs)
	if err != nil {
		// 没有归档时不报告任何已生成的文档
		res.Outputs = nil
		res.Message = fmt.Sprintf("❌ Failed to package letters: %v", err)
		g.logger.Error("打包失败", zap.Error(err))
		return res
	}
	res.ArchivePath = archive
	res.Message = g.successMessage(len(res.Outputs), res.Errors)

	g.logger.Info("批量生成完成",
		zap.Int("outputs", len(res.Outputs)),
		zap.Int("errors", len(res.Errors)),
		zap.String("archive", archive))
	return res
}

// SampleResult 单份样例文档
type SampleResult struct {
	Output
	scope string
}

// Cleanup 删除样例文档所在的临时目录
func (s *SampleResult) Cleanup() error {
	if s == nil || s.scope == "" {
		return nil
	}
	err := os.RemoveAll(s.scope)
	s.scope = ""
	return err
}

// Sample 只处理第一条记录，返回单份文档而不是归档
func (g *Generator) Sample(ctx context.Context, req Request) (*SampleResult, error) {
	if len(req.Jobs) == 0 {
		return nil, ErrNoRecords
	}

	r, err := g.newRun(ctx, req)
	if err != nil {
		return nil, err
	}

	out, recErr := r.process(0, req.Jobs[0])
	if recErr != nil {
		os.RemoveAll(r.scope)
		return nil, recErr
	}
	return &SampleResult{Output: *out, scope: r.scope}, nil
}

func (g *Generator) successMessage(count int, errs []*RecordError) string {
	var sb strings.Builder
	noun := "letters"
	if count == 1 {
		noun = "letter"
	}
	fmt.Fprintf(&sb, "✅ %d %s generated", count, noun)
	if len(errs) > 0 {
		fmt.Fprintf(&sb, "\n⚠️ %d issue(s):", len(errs))
		g.writeErrors(&sb, errs)
	}
	return sb.String()
}

func (g *Generator) failureMessage(errs []*RecordError) string {
	var sb strings.Builder
	sb.WriteString("❌ No letters generated")
	if len(errs) > 0 {
		sb.WriteString(":")
		g.writeErrors(&sb, errs)
	}
	return sb.String()
}

// writeErrors 最多列出 summaryLimit 条错误
func (g *Generator) writeErrors(sb *strings.Builder, errs []*RecordError) {
	for i, e := range errs {
		if i == g.summaryLimit {
			fmt.Fprintf(sb, "\n... and %d more", len(errs)-g.summaryLimit)
			break
		}
		sb.WriteString("\n- ")
		sb.WriteString(e.Error())
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

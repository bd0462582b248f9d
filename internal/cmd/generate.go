package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/allanpk716/docx_mailmerge/internal/batch"
)

// generateFlags generate 子命令共用的参数
type generateFlags struct {
	template string
	pattern  string
	outDir   string
}

func (f *generateFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.template, "template", "t", "", "模板名称 (支持部分名称)")
	cmd.Flags().StringVarP(&f.pattern, "pattern", "p", "", "输出文件名模式，例如 Offer_Letter_{name}")
	cmd.Flags().StringVarP(&f.outDir, "out", "o", ".", "输出目录")
}

func newGenerateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "用当前数据生成信件",
	}

	var sampleFlags, allFlags generateFlags

	sample := &cobra.Command{
		Use:   "sample",
		Short: "只用第一行数据生成一份样例",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, gen, err := a.prepareGenerate(cmd.Context(), &sampleFlags)
			if err != nil {
				return err
			}
			res, err := gen.Sample(cmd.Context(), req)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			path, err := deliver(res.Path, sampleFlags.outDir)
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())
			p.statusf("✅ Sample generated (%s)", res.Name)
			p.statusf("Saved to %s", path)
			if len(res.Stats.Unresolved) > 0 {
				p.statusf("⚠️ Unfilled placeholders: %s", strings.Join(res.Stats.Unresolved, ", "))
			}
			return nil
		},
	}
	sampleFlags.bind(sample)

	all := &cobra.Command{
		Use:   "all",
		Short: "为每行数据生成一份信件并打包",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, gen, err := a.prepareGenerate(cmd.Context(), &allFlags)
			if err != nil {
				return err
			}
			return a.runBatch(cmd, gen, req, allFlags.outDir)
		},
	}
	allFlags.bind(all)

	cmd.AddCommand(sample, all)
	return cmd
}

// prepareGenerate 定位模板并读取当前数据
func (a *app) prepareGenerate(ctx context.Context, flags *generateFlags) (batch.Request, *batch.Generator, error) {
	if strings.TrimSpace(flags.template) == "" {
		return batch.Request{}, nil, fmt.Errorf("Select a template")
	}
	gen, err := a.generator()
	if err != nil {
		return batch.Request{}, nil, err
	}
	name, err := a.store.FindTemplate(ctx, flags.template)
	if err != nil {
		return batch.Request{}, nil, fmt.Errorf("Template '%s' not found", flags.template)
	}
	rows, err := a.activeRows(ctx)
	if err != nil {
		return batch.Request{}, nil, err
	}
	return batch.Request{
		Template: name,
		Pattern:  flags.pattern,
		Jobs:     batch.NewJobs(rows),
	}, gen, nil
}

// runBatch 执行批量生成并把归档复制到输出目录
func (a *app) runBatch(cmd *cobra.Command, gen *batch.Generator, req batch.Request, outDir string) error {
	res := gen.Generate(cmd.Context(), req)
	defer res.Cleanup()

	p := newPrinter(cmd.OutOrStdout())
	if !res.Success() {
		return fmt.Errorf("%s", strings.TrimPrefix(res.Message, "❌ "))
	}

	path, err := deliver(res.ArchivePath, outDir)
	if err != nil {
		return err
	}
	p.status(res.Message)
	p.statusf("Saved to %s", path)
	a.logger.Debug("归档已保存", zap.String("path", path))
	return nil
}

// deliver 把生成的文件复制到输出目录
func deliver(src, outDir string) (string, error) {
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("创建输出目录失败: %w", err)
	}
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("打开生成的文件失败: %w", err)
	}
	defer f.Close()

	dst := filepath.Join(outDir, filepath.Base(src))
	if err := atomic.WriteFile(dst, f); err != nil {
		return "", fmt.Errorf("保存文件失败: %w", err)
	}
	return dst, nil
}

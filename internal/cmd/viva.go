package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/allanpk716/docx_mailmerge/internal/batch"
	"github.com/allanpk716/docx_mailmerge/internal/viva"
)

func newVivaCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "viva",
		Short: "生成口试结果信",
	}

	sheet := &cobra.Command{
		Use:   "sheet <students>",
		Short: "输出学生分配表模板 (YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roster, err := a.loadRoster(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return viva.WriteSheet(cmd.OutOrStdout(), roster.Sheet())
		},
	}

	var (
		assignments string
		flags       generateFlags
	)
	generate := &cobra.Command{
		Use:   "generate <students>",
		Short: "按分配表为每个学生生成口试信",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roster, err := a.loadRoster(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout())

			if assignments != "" {
				f, err := os.Open(assignments)
				if err != nil {
					return fmt.Errorf("打开分配表失败: %w", err)
				}
				sheet, err := viva.LoadSheet(f)
				f.Close()
				if err != nil {
					return err
				}
				for _, e := range roster.ApplySheet(sheet) {
					p.statusf("⚠️ %v", e)
				}
			}

			gen, err := a.generator()
			if err != nil {
				return err
			}
			req := batch.Request{
				Pattern:       flags.pattern,
				Jobs:          roster.Jobs(cmd.Context(), a.store),
				ArchivePrefix: viva.ArchivePrefix,
			}
			return a.runBatch(cmd, gen, req, flags.outDir)
		},
	}
	generate.Flags().StringVarP(&assignments, "assignments", "a", "", "分配表文件 (YAML)")
	generate.Flags().StringVarP(&flags.pattern, "pattern", "p", "", "输出文件名模式，例如 Viva_{program}_{name}")
	generate.Flags().StringVarP(&flags.outDir, "out", "o", ".", "输出目录")

	cmd.AddCommand(sheet, generate)
	return cmd
}

// loadRoster 读取学生数据并创建名单
func (a *app) loadRoster(ctx context.Context, source string) (*viva.Roster, error) {
	cfg, err := a.ensureConfig()
	if err != nil {
		return nil, err
	}
	ds, _, err := a.openDataset(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("Error reading file: %w", err)
	}
	return viva.NewRoster(ds.Rows, viva.Options{
		Programs: cfg.ProgramOptions,
		Degrees:  cfg.DegreeOptions,
	}, a.logger)
}

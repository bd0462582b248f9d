package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/allanpk716/docx_mailmerge/internal/matcher"
	"github.com/allanpk716/docx_mailmerge/internal/store"
	"github.com/allanpk716/docx_mailmerge/pkg/docx"
)

func newTemplateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "管理模板",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "upload <file.docx>...",
			Short: "上传模板",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.ensureStore()
				if err != nil {
					return err
				}
				p := newPrinter(cmd.OutOrStdout())
				failed := 0
				for _, path := range args {
					if err := uploadTemplate(cmd.Context(), s, p, path); err != nil {
						p.statusf("❌ %s: %v", filepath.Base(path), err)
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d uploads failed", failed, len(args))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "列出模板",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.ensureStore()
				if err != nil {
					return err
				}
				entries, err := s.ListTemplates(cmd.Context())
				if err != nil {
					return err
				}
				printEntries(newPrinter(cmd.OutOrStdout()), "templates", entries)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "删除模板",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.ensureStore()
				if err != nil {
					return err
				}
				if err := s.DeleteTemplate(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("Error deleting template: %w", err)
				}
				newPrinter(cmd.OutOrStdout()).statusf("✅ Delete successful '%s'", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "placeholders <name>",
			Short: "列出模板中的占位符",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.ensureStore()
				if err != nil {
					return err
				}
				name, err := s.FindTemplate(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("Template '%s' not found", args[0])
				}
				names, err := templatePlaceholders(cmd.Context(), s, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, matcher.FormatPlaceholderList(names))
				return nil
			},
		},
	)
	return cmd
}

func uploadTemplate(ctx context.Context, s *store.Store, p *printer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()

	entry, err := s.UploadTemplate(ctx, filepath.Base(path), f)
	if err != nil {
		return err
	}
	names, err := templatePlaceholders(ctx, s, entry.Filename)
	if err != nil {
		return err
	}
	p.statusf("✅ Upload successful '%s'", entry.Filename)
	p.statusf("Placeholders: %s", matcher.FormatPlaceholderList(names))
	return nil
}

// templatePlaceholders 读取已保存的模板并提取占位符
func templatePlaceholders(ctx context.Context, s *store.Store, name string) ([]string, error) {
	rc, err := s.OpenTemplate(ctx, name)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("读取模板失败: %w", err)
	}

	tpl, err := docx.ParseTemplate(name, data)
	if err != nil {
		return nil, err
	}
	doc, err := tpl.Open()
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return matcher.ExtractPlaceholders(doc), nil
}

func printEntries(p *printer, kind string, entries []store.Entry) {
	if len(entries) == 0 {
		p.statusf("⚠️ No %s saved", kind)
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Filename,
			strconv.FormatInt(e.Size, 10),
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	p.table([]string{"Filename", "Bytes", "Uploaded"}, rows)
}

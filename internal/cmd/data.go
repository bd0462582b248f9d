package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/allanpk716/docx_mailmerge/internal/ingest"
	"github.com/allanpk716/docx_mailmerge/internal/record"
	"github.com/allanpk716/docx_mailmerge/internal/session"
)

const defaultPreviewRows = 10

func newDataCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "管理数据文件",
	}

	var previewRows int
	preview := &cobra.Command{
		Use:   "preview <name|file>",
		Short: "预览数据文件的前几行",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.ensureConfig(); err != nil {
				return err
			}
			ds, _, err := a.openDataset(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("Error previewing file: %w", err)
			}
			printDataset(newPrinter(cmd.OutOrStdout()), ds, previewRows)
			return nil
		},
	}
	preview.Flags().IntVarP(&previewRows, "rows", "n", defaultPreviewRows, "显示的行数")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "upload <file>",
			Short: "上传 CSV 或 XLSX 数据文件",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.ensureStore()
				if err != nil {
					return err
				}
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("打开文件失败: %w", err)
				}
				defer f.Close()

				entry, err := s.UploadData(cmd.Context(), filepath.Base(args[0]), f)
				if err != nil {
					return err
				}
				newPrinter(cmd.OutOrStdout()).statusf("✅ Upload successful '%s'", entry.Filename)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "列出数据文件",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.ensureStore()
				if err != nil {
					return err
				}
				entries, err := s.ListData(cmd.Context())
				if err != nil {
					return err
				}
				printEntries(newPrinter(cmd.OutOrStdout()), "data files", entries)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "删除数据文件",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := a.ensureStore()
				if err != nil {
					return err
				}
				if err := s.DeleteData(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("Error deleting %s: %w", args[0], err)
				}
				// 删除的正是当前数据时清除会话
				if st, err := session.LoadState(a.statePath()); err == nil && st.Kind == session.KindStored && st.Source == args[0] {
					if err := session.ClearState(a.statePath()); err != nil {
						return err
					}
				}
				newPrinter(cmd.OutOrStdout()).statusf("✅ Delete successful '%s'", args[0])
				return nil
			},
		},
		preview,
		&cobra.Command{
			Use:   "load <name|file>",
			Short: "加载数据供生成使用",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := a.ensureConfig(); err != nil {
					return err
				}
				ds, st, err := a.openDataset(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("Error reading file: %w", err)
				}
				if err := a.activate(ds, st); err != nil {
					return err
				}
				newPrinter(cmd.OutOrStdout()).status(loadedMessage(ds))
				return nil
			},
		},
	)
	return cmd
}

func newPasteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "paste <file|->",
		Short: "加载粘贴的数据，每行一条记录，格式为 key: value, key: value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.ensureConfig(); err != nil {
				return err
			}

			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("读取粘贴内容失败: %w", err)
			}

			text := string(data)
			ds, errs := ingest.ParsePasted(text)
			if ds.Len() == 0 {
				return fmt.Errorf("No valid data. %s", ingest.JoinErrors(errs))
			}
			if err := a.activate(ds, &session.State{
				Kind:   session.KindPasted,
				Source: ingest.PastedSource,
				Pasted: text,
			}); err != nil {
				return err
			}

			p := newPrinter(cmd.OutOrStdout())
			p.status(loadedMessage(ds))
			if len(errs) > 0 {
				p.statusf("⚠️ %s", ingest.JoinErrors(errs))
			}
			return nil
		},
	}
}

func loadedMessage(ds *ingest.Dataset) string {
	return fmt.Sprintf("✅ Loaded %d rows. Columns: %s", ds.Len(), strings.Join(ds.Columns, ", "))
}

func printDataset(p *printer, ds *ingest.Dataset, n int) {
	rows := make([][]string, 0, n)
	for _, raw := range ds.Head(n) {
		row := make([]string, len(ds.Columns))
		for i, col := range ds.Columns {
			if v, ok := raw.Get(col); ok {
				row[i] = record.Stringify(v)
			}
		}
		rows = append(rows, row)
	}
	p.table(ds.Columns, rows)
	p.statusf("%s: %d rows", ds.Source, ds.Len())
}

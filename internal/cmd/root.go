// Package cmd 实现 docx-mailmerge 命令行
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const (
	AppName    = "docx-mailmerge"
	AppVersion = "1.0.0"
)

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           AppName,
		Short:         "Generate personalised Word letters from a template and tabular data",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "配置文件路径 (默认在用户配置目录下)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "详细输出")

	root.AddCommand(
		newTemplateCommand(a),
		newDataCommand(a),
		newPasteCommand(a),
		newGenerateCommand(a),
		newVivaCommand(a),
		newFAQCommand(),
		newConfigCommand(a),
		newVersionCommand(),
	)
	return root
}

// Execute 运行命令行并返回退出码
func Execute() int {
	return execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := newApp()
	defer a.close()

	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		newPrinter(stderr).status("❌ " + err.Error())
		return 1
	}
	return 0
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", AppName, AppVersion)
		},
	}
}

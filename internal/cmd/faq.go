package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/allanpk716/docx_mailmerge/internal/faq"
)

func newFAQCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "faq [question]",
		Short: "常见问题助手，不带参数时进入问答模式",
		RunE: func(cmd *cobra.Command, args []string) error {
			assistant := faq.NewAssistant(nil)
			out := cmd.OutOrStdout()

			if len(args) > 0 {
				fmt.Fprintln(out, assistant.Ask(strings.Join(args, " ")).Answer)
				return nil
			}

			fmt.Fprintln(out, "Ask a question (type 'exit' to quit).")
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					fmt.Fprintln(out)
					break
				}
				question := strings.TrimSpace(scanner.Text())
				if question == "" {
					continue
				}
				if strings.EqualFold(question, "exit") || strings.EqualFold(question, "quit") {
					break
				}
				fmt.Fprintln(out, assistant.Ask(question).Answer)
			}
			return scanner.Err()
		},
	}
}

package main

import (
	"os"

	"github.com/allanpk716/docx_mailmerge/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

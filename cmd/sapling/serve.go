package main

import (
	"fmt"

	"github.com/nihei9/sapling/driver/parser"
	"github.com/nihei9/sapling/lsp"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve <grammar file path>",
		Short: "Run a language server over stdio",
		Long: `serve runs a language server that parses every open document with a grammar
and reports syntax errors as diagnostics. Logs go to stderr or to the --log file.`,
		Example: `  sapling serve grammar.sapling --log sapling.log`,
		Args:    cobra.ExactArgs(1),
		RunE:    runServe,
	}
	rootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	lang, err := loadLanguage(args[0])
	if err != nil {
		return fmt.Errorf("Cannot read a compiled grammar: %w", err)
	}

	s := lsp.NewServer(lang, parser.WithLogger(commonlog.GetLogger("sapling.parser")))
	return s.RunStdio()
}

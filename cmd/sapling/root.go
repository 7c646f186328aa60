package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var rootFlags = struct {
	verbose *int
	logFile *string
	cache   *string
	noCache *bool
}{}

var rootCmd = &cobra.Command{
	Use:   "sapling",
	Short: "Generate an incremental parser from a grammar",
	Long: `sapling provides the following features:
- Compiles a grammar into parsing tables and a contextual lexer.
- Parses a text with a grammar, recovering from syntax errors.
- Runs test cases against a grammar.
- Serves a language server reporting syntax errors of open documents.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var path *string
		if *rootFlags.logFile != "" {
			path = rootFlags.logFile
		}
		commonlog.Configure(*rootFlags.verbose, path)
	},
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootFlags.verbose = rootCmd.PersistentFlags().CountP("verbose", "v", "log verbosity (repeat for more)")
	rootFlags.logFile = rootCmd.PersistentFlags().String("log", "", "log file path (default stderr)")
	rootFlags.cache = rootCmd.PersistentFlags().String("cache", "", "compiled grammar cache path (default <user cache directory>/sapling/grammars.db)")
	rootFlags.noCache = rootCmd.PersistentFlags().Bool("no-cache", false, "compile grammar sources without the cache")
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return err
	}
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nihei9/sapling/driver/parser"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
)

var parseFlags = struct {
	source  *string
	format  *string
	timeout *time.Duration
	opLimit *int
}{}

func init() {
	cmd := &cobra.Command{
		Use:   "parse <grammar file path>",
		Short: "Parse a text stream",
		Long: `parse parses a text with a grammar and prints the syntax tree.
The grammar is either a compiled grammar (.json) or a grammar source.
Syntax errors are printed to stderr, and the tree contains ERROR nodes for them.`,
		Example: `  cat src | sapling parse grammar.sapling`,
		Args:    cobra.ExactArgs(1),
		RunE:    runParse,
	}
	parseFlags.source = cmd.Flags().StringP("source", "s", "", "source file path (default stdin)")
	parseFlags.format = cmd.Flags().StringP("format", "f", "tree", "output format: tree, sexp, or json")
	parseFlags.timeout = cmd.Flags().Duration("timeout", 0, "stop parsing after the duration (0 means no limit)")
	parseFlags.opLimit = cmd.Flags().Int("op-limit", 0, "stop parsing after the number of parser operations (0 means no limit)")
	rootCmd.AddCommand(cmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	switch *parseFlags.format {
	case "tree", "sexp", "json":
	default:
		return fmt.Errorf("Unknown output format: %v", *parseFlags.format)
	}

	lang, err := loadLanguage(args[0])
	if err != nil {
		return fmt.Errorf("Cannot read a compiled grammar: %w", err)
	}

	src, err := readSource(*parseFlags.source)
	if err != nil {
		return err
	}

	opts := []parser.ParserOption{
		parser.WithLogger(commonlog.GetLogger("sapling.parser")),
	}
	if *parseFlags.timeout > 0 {
		opts = append(opts, parser.WithDeadline(time.Now().Add(*parseFlags.timeout)))
	}
	if *parseFlags.opLimit > 0 {
		opts = append(opts, parser.WithOperationLimit(*parseFlags.opLimit))
	}
	p, err := parser.NewParser(lang, opts...)
	if err != nil {
		return err
	}

	in := parser.NewInput(src)
	tree, err := p.Parse(context.Background(), in, nil)
	if err != nil {
		return err
	}

	printSyntaxErrors(tree, in)
	if tree.Partial() {
		fmt.Fprintf(os.Stderr, "the parse was stopped before the end of the input\n")
	}

	root := tree.Root()
	switch *parseFlags.format {
	case "sexp":
		fmt.Fprintln(os.Stdout, root)
	case "json":
		b, err := json.Marshal(root)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%v\n", string(b))
	default:
		parser.PrintTree(os.Stdout, root)
	}

	return nil
}

// printSyntaxErrors prints the outermost error nodes of a tree.
func printSyntaxErrors(tree *parser.Tree, in parser.Input) {
	tree.Walk(func(n *parser.Node, depth int) bool {
		if !n.IsError() {
			return n.HasError()
		}
		pos := n.StartPoint()
		text := n.Text(in)
		if text == "" {
			fmt.Fprintf(os.Stderr, "%v:%v: syntax error: unexpected <eof>\n", pos.Row+1, pos.Column+1)
		} else {
			fmt.Fprintf(os.Stderr, "%v:%v: syntax error: unexpected %q\n", pos.Row+1, pos.Column+1, text)
		}
		return false
	})
	if tree.Fatal() {
		fmt.Fprintf(os.Stderr, "too many syntax errors; the rest of the input was skipped\n")
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nihei9/sapling/language"
	spec "github.com/nihei9/sapling/spec/grammar"
	"github.com/spf13/cobra"
)

func Execute() error {
	return generateCmd.Execute()
}

var generateFlags = struct {
	pkgName *string
	output  *string
}{}

var generateCmd = &cobra.Command{
	Use:   "sapling-go",
	Short: "Generate a Go package exposing a compiled grammar",
	Long: `sapling-go generates <grammar name>_language.go, which embeds a compiled grammar
and exposes it through func Language() *language.Language.`,
	Example:       `  sapling-go grammar.json -p expr`,
	Args:          cobra.ExactArgs(1),
	RunE:          runGenerate,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	generateFlags.pkgName = generateCmd.Flags().StringP("package", "p", "main", "package name")
	generateFlags.output = generateCmd.Flags().StringP("output", "o", ".", "output directory")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cgram, err := readCompiledGrammar(args[0])
	if err != nil {
		return fmt.Errorf("Cannot read a compiled grammar: %w", err)
	}

	b, err := language.GenAccessor(cgram, *generateFlags.pkgName)
	if err != nil {
		return fmt.Errorf("Failed to generate an accessor: %w", err)
	}

	filePath := filepath.Join(*generateFlags.output, fmt.Sprintf("%v_language.go", cgram.Name))
	err = os.WriteFile(filePath, b, 0644)
	if err != nil {
		return fmt.Errorf("Failed to write accessor source code: %v", err)
	}

	return nil
}

func readCompiledGrammar(path string) (*spec.CompiledGrammar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cgram := &spec.CompiledGrammar{}
	err = json.Unmarshal(data, cgram)
	if err != nil {
		return nil, err
	}
	return cgram, nil
}

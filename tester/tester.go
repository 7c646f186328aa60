package tester

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nihei9/sapling/driver/parser"
	"github.com/nihei9/sapling/language"
	gspec "github.com/nihei9/sapling/spec/grammar"
	tspec "github.com/nihei9/sapling/spec/test"
)

type TestResult struct {
	TestCasePath string
	Error        error
	Diffs        []*tspec.TreeDiff
}

func (r *TestResult) String() string {
	if r.Error != nil {
		const indent1 = "    "
		const indent2 = indent1 + indent1

		msgLines := strings.Split(r.Error.Error(), "\n")
		msg := fmt.Sprintf("Failed %v:\n%v%v", r.TestCasePath, indent1, strings.Join(msgLines, "\n"+indent1))
		if len(r.Diffs) == 0 {
			return msg
		}
		var diffLines []string
		for _, diff := range r.Diffs {
			diffLines = append(diffLines, diff.Message)
			diffLines = append(diffLines, fmt.Sprintf("%vexpected path: %v", indent1, diff.ExpectedPath))
			diffLines = append(diffLines, fmt.Sprintf("%vactual path:   %v", indent1, diff.ActualPath))
		}
		return fmt.Sprintf("%v\n%v%v", msg, indent2, strings.Join(diffLines, "\n"+indent2))
	}
	return fmt.Sprintf("Passed %v", r.TestCasePath)
}

type TestCaseWithMetadata struct {
	TestCase *tspec.TestCase
	FilePath string
	Error    error
}

func ListTestCases(testPath string) []*TestCaseWithMetadata {
	fi, err := os.Stat(testPath)
	if err != nil {
		return []*TestCaseWithMetadata{
			{
				FilePath: testPath,
				Error:    err,
			},
		}
	}
	if !fi.IsDir() {
		c, err := parseTestCase(testPath)
		return []*TestCaseWithMetadata{
			{
				TestCase: c,
				FilePath: testPath,
				Error:    err,
			},
		}
	}

	es, err := os.ReadDir(testPath)
	if err != nil {
		return []*TestCaseWithMetadata{
			{
				FilePath: testPath,
				Error:    err,
			},
		}
	}
	var cases []*TestCaseWithMetadata
	for _, e := range es {
		cs := ListTestCases(filepath.Join(testPath, e.Name()))
		cases = append(cases, cs...)
	}
	return cases
}

func parseTestCase(testCasePath string) (*tspec.TestCase, error) {
	f, err := os.Open(testCasePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tspec.ParseTestCase(f)
}

type Tester struct {
	Grammar *gspec.CompiledGrammar
	Cases   []*TestCaseWithMetadata

	// Options are passed to the parser of every test case.
	Options []parser.ParserOption
}

func (t *Tester) Run() []*TestResult {
	lang, err := language.New(t.Grammar)
	if err != nil {
		var rs []*TestResult
		for _, c := range t.Cases {
			rs = append(rs, &TestResult{
				TestCasePath: c.FilePath,
				Error:        err,
			})
		}
		return rs
	}

	var rs []*TestResult
	for _, c := range t.Cases {
		rs = append(rs, t.runTest(lang, c))
	}
	return rs
}

func (t *Tester) runTest(lang *language.Language, c *TestCaseWithMetadata) *TestResult {
	if c.Error != nil {
		return &TestResult{
			TestCasePath: c.FilePath,
			Error:        c.Error,
		}
	}

	p, err := parser.NewParser(lang, t.Options...)
	if err != nil {
		return &TestResult{
			TestCasePath: c.FilePath,
			Error:        err,
		}
	}
	in := parser.NewInput(c.TestCase.Source)
	tree, err := p.Parse(context.Background(), in, nil)
	if err != nil {
		return &TestResult{
			TestCasePath: c.FilePath,
			Error:        err,
		}
	}
	if tree.Partial() {
		return &TestResult{
			TestCasePath: c.FilePath,
			Error:        fmt.Errorf("the parse was stopped before the end of the input"),
		}
	}

	// A tree containing errors is compared too, so a test case can expect ERROR nodes.
	diffs := tspec.DiffTree(c.TestCase.Output, ConvertTree(tree.Root(), in).Fill())
	if len(diffs) > 0 {
		return &TestResult{
			TestCasePath: c.FilePath,
			Error:        fmt.Errorf("output mismatch"),
			Diffs:        diffs,
		}
	}
	return &TestResult{
		TestCasePath: c.FilePath,
	}
}

// ConvertTree converts a syntax tree into the form test cases are written in. It keeps
// named nodes except extras, and leaves carry their text.
func ConvertTree(node *parser.Node, in parser.Input) *tspec.Tree {
	t := &tspec.Tree{
		Kind:  node.Type(),
		Field: node.FieldName(),
	}
	if node.ChildCount() == 0 {
		t.Lexeme = node.Text(in)
		return t
	}
	for _, c := range node.VisibleChildren() {
		if !c.IsNamed() || c.IsExtra() {
			continue
		}
		t.Children = append(t.Children, ConvertTree(c, in))
	}
	return t
}

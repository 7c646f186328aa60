package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/nihei9/sapling/grammar"
	spec "github.com/nihei9/sapling/spec/grammar"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "show <report file path>|<grammar file path>",
		Short: "Print a report in a readable format",
		Long: `show prints a report that compile writes.
When a grammar source is given instead, show compiles it and prints the report
even if the grammar has conflicts.`,
		Example: `  sapling show grammar-report.json`,
		Args:    cobra.ExactArgs(1),
		RunE:    runShow,
	}
	rootCmd.AddCommand(cmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	var report *spec.Report
	var compileErr error
	if filepath.Ext(args[0]) == ".json" {
		var err error
		report, err = readReport(args[0])
		if err != nil {
			return err
		}
	} else {
		var err error
		report, compileErr, err = compileReport(args[0])
		if err != nil {
			return err
		}
	}

	err := writeReportText(os.Stdout, report)
	if err != nil {
		return err
	}

	return compileErr
}

func readReport(path string) (*spec.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Cannot open the report %s: %w", path, err)
	}
	defer f.Close()

	d, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	report := &spec.Report{}
	err = json.Unmarshal(d, report)
	if err != nil {
		return nil, err
	}

	return report, nil
}

// compileReport returns the report of a grammar source. A conflict error is returned
// as the second value along with the report.
func compileReport(path string) (*spec.Report, error, error) {
	src, err := readSource(path)
	if err != nil {
		return nil, nil, err
	}
	gram, err := buildGrammar(src)
	if err != nil {
		return nil, nil, withSourceName(err, path)
	}
	_, report, err := grammar.Compile(gram, grammar.EnableReporting())
	if err != nil {
		var conflictErr *grammar.ConflictError
		if errors.As(err, &conflictErr) && report != nil {
			return report, err, nil
		}
		return nil, nil, err
	}
	return report, nil, nil
}

const reportTemplate = `# {{ .Name }}

# Conflicts

{{ printConflictSummary . }}

# Terminals

{{ range slice .Terminals 1 -}}
{{ printTerminal . }}
{{ end }}
# Non-terminals

{{ range slice .NonTerminals 1 -}}
{{ printNonTerminal . }}
{{ end }}
# Productions

{{ range slice .Productions 1 -}}
{{ printProduction . }}
{{ end }}
# Lex modes

{{ range .LexModes -}}
{{ printLexMode . }}
{{ end }}
# States
{{ range .States }}
## State {{ .Number }} (lex mode {{ .LexMode }})

{{ range .Kernel -}}
{{ printItem . }}
{{ end }}
{{ range .Shift -}}
{{ printShift . }}
{{ end -}}
{{ range .Reduce -}}
{{ printReduce . }}
{{ end -}}
{{ range .GoTo -}}
{{ printGoTo . }}
{{ end }}
{{ range .SRConflict -}}
{{ printSRConflict . }}
{{ end -}}
{{ range .RRConflict -}}
{{ printRRConflict . }}
{{ end -}}
{{ end }}`

func writeReportText(w io.Writer, report *spec.Report) error {
	termName := func(sym int) string {
		if report.Terminals[sym].Alias != "" {
			return report.Terminals[sym].Alias
		}
		return report.Terminals[sym].Name
	}

	nonTermName := func(sym int) string {
		return report.NonTerminals[sym].Name
	}

	assocName := func(assoc string) string {
		switch assoc {
		case "l":
			return "left"
		case "r":
			return "right"
		default:
			return "no"
		}
	}

	symName := func(e int) string {
		if e > 0 {
			return termName(e)
		}
		return nonTermName(e * -1)
	}

	precAndAssoc := func(prec int, assoc string) string {
		p := " -"
		if prec != 0 {
			p = fmt.Sprintf("%2v", prec)
		}
		a := "-"
		if assoc != "" {
			a = assoc
		}
		return p + " " + a
	}

	fns := template.FuncMap{
		"printConflictSummary": func(report *spec.Report) string {
			var resolved, split, unresolved int
			for _, s := range report.States {
				var methods []int
				for _, c := range s.SRConflict {
					methods = append(methods, c.ResolvedBy)
				}
				for _, c := range s.RRConflict {
					methods = append(methods, c.ResolvedBy)
				}
				for _, m := range methods {
					switch m {
					case grammar.ResolvedBySplit.Int():
						split++
					case grammar.ResolvedByPrec.Int(), grammar.ResolvedByAssoc.Int(), grammar.ResolvedByProdOrder.Int():
						resolved++
					default:
						unresolved++
					}
				}
			}

			var b strings.Builder
			if resolved > 0 {
				fmt.Fprintf(&b, "%v conflicts occurred and resolved explicitly.\n", resolved)
			}
			if split > 0 {
				fmt.Fprintf(&b, "%v conflicts occurred and are left to the GLR parser.\n", split)
			}
			if unresolved > 0 {
				fmt.Fprintf(&b, "%v conflicts occurred and remain unresolved.\n", unresolved)
			}
			if resolved == 0 && split == 0 && unresolved == 0 {
				fmt.Fprintf(&b, "No conflict")
			}
			return b.String()
		},
		"printTerminal": func(term *spec.Terminal) string {
			if term == nil {
				return ""
			}
			var flags []string
			if term.Skip {
				flags = append(flags, "skip")
			}
			if term.External {
				flags = append(flags, "external")
			}
			var b strings.Builder
			fmt.Fprintf(&b, "%4v %v %v", term.Number, precAndAssoc(term.Precedence, term.Associativity), term.Name)
			if term.Alias != "" {
				fmt.Fprintf(&b, " (%v)", term.Alias)
			}
			if len(flags) > 0 {
				fmt.Fprintf(&b, " [%v]", strings.Join(flags, ", "))
			}
			return b.String()
		},
		"printNonTerminal": func(nonTerm *spec.NonTerminal) string {
			if nonTerm == nil {
				return ""
			}
			var flags []string
			if nonTerm.Hidden {
				flags = append(flags, "hidden")
			}
			if nonTerm.Supertype {
				flags = append(flags, "supertype")
			}
			if nonTerm.GLR {
				flags = append(flags, "glr")
			}
			if len(flags) > 0 {
				return fmt.Sprintf("%4v %v [%v]", nonTerm.Number, nonTerm.Name, strings.Join(flags, ", "))
			}
			return fmt.Sprintf("%4v %v", nonTerm.Number, nonTerm.Name)
		},
		"printProduction": func(prod *spec.Production) string {
			var b strings.Builder
			fmt.Fprintf(&b, "%v →", nonTermName(prod.LHS))
			if len(prod.RHS) > 0 {
				for _, e := range prod.RHS {
					fmt.Fprintf(&b, " %v", symName(e))
				}
			} else {
				fmt.Fprintf(&b, " ε")
			}

			return fmt.Sprintf("%4v %v %v", prod.Number, precAndAssoc(prod.Precedence, prod.Associativity), b.String())
		},
		"printLexMode": func(mode *spec.LexMode) string {
			names := make([]string, len(mode.Terminals))
			for i, t := range mode.Terminals {
				names[i] = termName(t)
			}
			return fmt.Sprintf("%4v %v: %v", mode.Number, mode.Name, strings.Join(names, ", "))
		},
		"printItem": func(item *spec.Item) string {
			prod := report.Productions[item.Production]

			var b strings.Builder
			fmt.Fprintf(&b, "%v →", nonTermName(prod.LHS))
			for i, e := range prod.RHS {
				if i == item.Dot {
					fmt.Fprintf(&b, " ・")
				}
				fmt.Fprintf(&b, " %v", symName(e))
			}
			if item.Dot >= len(prod.RHS) {
				fmt.Fprintf(&b, " ・")
			}

			return fmt.Sprintf("%4v %v", prod.Number, b.String())
		},
		"printShift": func(tran *spec.Transition) string {
			return fmt.Sprintf("shift  %4v on %v", tran.State, termName(tran.Symbol))
		},
		"printReduce": func(reduce *spec.Reduce) string {
			var b strings.Builder
			{
				fmt.Fprintf(&b, "%v", termName(reduce.LookAhead[0]))
				for _, a := range reduce.LookAhead[1:] {
					fmt.Fprintf(&b, ", %v", termName(a))
				}
			}
			return fmt.Sprintf("reduce %4v on %v", reduce.Production, b.String())
		},
		"printGoTo": func(tran *spec.Transition) string {
			return fmt.Sprintf("goto   %4v on %v", tran.State, nonTermName(tran.Symbol))
		},
		"printSRConflict": func(sr *spec.SRConflict) string {
			var adopted string
			switch {
			case sr.AdoptedState != nil:
				adopted = fmt.Sprintf("shift %v", *sr.AdoptedState)
			case sr.AdoptedProduction != nil:
				adopted = fmt.Sprintf("reduce %v", *sr.AdoptedProduction)
			}
			prodAssoc := assocName(report.Productions[sr.Production].Associativity)
			var resolvedBy string
			switch sr.ResolvedBy {
			case grammar.ResolvedByPrec.Int():
				if sr.AdoptedState != nil {
					resolvedBy = fmt.Sprintf("symbol %v has higher precedence than production %v", termName(sr.Symbol), sr.Production)
				} else {
					resolvedBy = fmt.Sprintf("production %v has higher precedence than symbol %v", sr.Production, termName(sr.Symbol))
				}
			case grammar.ResolvedByAssoc.Int():
				resolvedBy = fmt.Sprintf("production %v and symbol %v have the same precedence, and production %v has %v associativity", sr.Production, termName(sr.Symbol), sr.Production, prodAssoc)
			case grammar.ResolvedBySplit.Int():
				return fmt.Sprintf("shift/reduce conflict (shift %v, reduce %v) on %v: split for the GLR parser", sr.State, sr.Production, termName(sr.Symbol))
			default:
				return fmt.Sprintf("shift/reduce conflict (shift %v, reduce %v) on %v: unresolved", sr.State, sr.Production, termName(sr.Symbol))
			}
			return fmt.Sprintf("shift/reduce conflict (shift %v, reduce %v) on %v: %v adopted because %v", sr.State, sr.Production, termName(sr.Symbol), adopted, resolvedBy)
		},
		"printRRConflict": func(rr *spec.RRConflict) string {
			var resolvedBy string
			switch rr.ResolvedBy {
			case grammar.ResolvedByPrec.Int():
				resolvedBy = fmt.Sprintf("production %v has higher precedence", rr.AdoptedProduction)
			case grammar.ResolvedByProdOrder.Int():
				resolvedBy = fmt.Sprintf("productions %v and %v have the same precedence, and production %v is declared earlier", rr.Production1, rr.Production2, rr.AdoptedProduction)
			case grammar.ResolvedBySplit.Int():
				return fmt.Sprintf("reduce/reduce conflict (%v, %v) on %v: split for the GLR parser", rr.Production1, rr.Production2, termName(rr.Symbol))
			default:
				return fmt.Sprintf("reduce/reduce conflict (%v, %v) on %v: unresolved", rr.Production1, rr.Production2, termName(rr.Symbol))
			}
			return fmt.Sprintf("reduce/reduce conflict (%v, %v) on %v: reduce %v adopted because %v", rr.Production1, rr.Production2, termName(rr.Symbol), rr.AdoptedProduction, resolvedBy)
		},
	}

	tmpl, err := template.New("").Funcs(fns).Parse(reportTemplate)
	if err != nil {
		return err
	}

	return tmpl.Execute(w, report)
}

// Package lpformat writes formulations in CPLEX LP text format so a model can be
// inspected or handed to any external MIP solver. Output is deterministic.
package lpformat

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/vsinha/batchalloc/pkg/domain/formulation"
)

// termsPerLine keeps lines well under the 255 character limit of LP readers
const termsPerLine = 6

var nameReplacer = strings.NewReplacer("[", "(", "]", ")", " ", "_", ":", "_", "+", "_", "-", "_", "*", "_", "<", "_", ">", "_", "=", "_")

// Name converts a formulation name into an LP-safe identifier
func Name(name string) string {
	return nameReplacer.Replace(name)
}

// Write renders f to w
func Write(w io.Writer, f *formulation.Formulation) error {
	if f == nil {
		return fmt.Errorf("lpformat: formulation cannot be nil")
	}
	bw := bufio.NewWriter(w)
	vars := f.Variables()

	fmt.Fprintf(bw, "\\ Problem: %s\n", f.Name())
	fmt.Fprintf(bw, "\\ %d variables, %d constraints\n", len(vars), f.NumConstraints())

	objective := f.Objective()
	if objective.Direction == formulation.Minimize {
		bw.WriteString("Minimize\n")
	} else {
		bw.WriteString("Maximize\n")
	}
	if objective.Constant != 0 {
		fmt.Fprintf(bw, "\\ objective constant %s omitted\n", number(objective.Constant))
	}
	bw.WriteString(" obj:")
	writeTerms(bw, objective.Terms, vars)
	bw.WriteString("\n")

	bw.WriteString("Subject To\n")
	for _, c := range f.Constraints() {
		fmt.Fprintf(bw, " %s:", Name(c.Name))
		writeTerms(bw, c.Terms, vars)
		fmt.Fprintf(bw, " %s %s\n", c.Sense, number(c.RHS))
	}

	bw.WriteString("Bounds\n")
	var binaries []string
	for _, v := range vars {
		name := Name(v.Name)
		if v.Domain == formulation.Binary {
			binaries = append(binaries, name)
			if v.Fixed() {
				fmt.Fprintf(bw, " %s = %s\n", name, number(v.Lower))
			}
			continue
		}
		switch {
		case v.Fixed():
			fmt.Fprintf(bw, " %s = %s\n", name, number(v.Lower))
		case math.IsInf(v.Upper, 1) && v.Lower == 0:
			// default bounds
		case math.IsInf(v.Upper, 1):
			fmt.Fprintf(bw, " %s >= %s\n", name, number(v.Lower))
		default:
			fmt.Fprintf(bw, " %s <= %s <= %s\n", number(v.Lower), name, number(v.Upper))
		}
	}

	if len(binaries) > 0 {
		bw.WriteString("Binaries\n")
		for i := 0; i < len(binaries); i += termsPerLine {
			end := i + termsPerLine
			if end > len(binaries) {
				end = len(binaries)
			}
			fmt.Fprintf(bw, " %s\n", strings.Join(binaries[i:end], " "))
		}
	}
	bw.WriteString("End\n")
	return bw.Flush()
}

// WriteFile renders f to the named file
func WriteFile(path string, f *formulation.Formulation) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("lpformat: %w", err)
	}
	if err := Write(file, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func writeTerms(bw *bufio.Writer, terms []formulation.Term, vars []formulation.Variable) {
	if len(terms) == 0 {
		// LP readers need at least one term; zero times any variable keeps the row well formed.
		if len(vars) > 0 {
			fmt.Fprintf(bw, " 0 %s", Name(vars[0].Name))
		}
		return
	}
	for i, t := range terms {
		if i > 0 && i%termsPerLine == 0 {
			bw.WriteString("\n   ")
		}
		sign := "+"
		coef := t.Coef
		if coef < 0 {
			sign, coef = "-", -coef
		}
		if i == 0 && sign == "+" {
			fmt.Fprintf(bw, " %s %s", number(coef), Name(vars[t.Var].Name))
		} else {
			fmt.Fprintf(bw, " %s %s %s", sign, number(coef), Name(vars[t.Var].Name))
		}
	}
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

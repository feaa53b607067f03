// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: LISREL Output Extraction for GIMME Model Refitting
// Class: 02-613 at Caregie Mellon University

package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// LISREL pads columns with at least two spaces. Single spaces occur inside
// tokens ("VAR 19", "- -") so they never split.
var columnGap = regexp.MustCompile(`\s{2,}`)

// NewCoefficientMatrix makes an n x n matrix with every cell Missing.
func NewCoefficientMatrix(n int) *CoefficientMatrix {
	cm := &CoefficientMatrix{
		N:             n,
		Estimate:      mat.NewDense(n, n, nil),
		StandardError: mat.NewDense(n, n, nil),
		TValue:        mat.NewDense(n, n, nil),
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cm.Estimate.Set(i, j, Missing)
			cm.StandardError.Set(i, j, Missing)
			cm.TValue.Set(i, j, Missing)
		}
	}
	return cm
}

// At returns the triple stored at (row, col).
func (cm *CoefficientMatrix) At(row, col int) CoefficientEntry {
	return CoefficientEntry{
		Estimate:      cm.Estimate.At(row, col),
		StandardError: cm.StandardError.At(row, col),
		TValue:        cm.TValue.At(row, col),
	}
}

// Set overwrites the triple at (row, col). Cells outside the matrix are ignored.
func (cm *CoefficientMatrix) Set(row, col int, e CoefficientEntry) {
	if row < 0 || row >= cm.N || col < 0 || col >= cm.N {
		return
	}
	cm.Estimate.Set(row, col, e.Estimate)
	cm.StandardError.Set(row, col, e.StandardError)
	cm.TValue.Set(row, col, e.TValue)
}

// Filled counts the cells holding anything other than the missing triple.
func (cm *CoefficientMatrix) Filled() int {
	n := 0
	for i := 0; i < cm.N; i++ {
		for j := 0; j < cm.N; j++ {
			e := cm.At(i, j)
			if !IsMissing(e.Estimate) || !IsMissing(e.StandardError) || !IsMissing(e.TValue) {
				n++
			}
		}
	}
	return n
}

// BetaParser reads the BETA blocks of an extracted model section.
//
// A block looks like
//
//	BETA
//
//	        VAR 1      VAR 2      VAR 3
//	VAR 19   0.25       - -       -0.10
//	        (0.05)                (0.04)
//	         5.00                 -2.50
//
// The estimate line has one token per header column. The two lines below it
// only carry the standard errors and t-values of the free estimates, in order.
type BetaParser struct {
	blockLabel string
	rowLabel   *regexp.Regexp
	colLabel   *regexp.Regexp
	n          int
}

// NewBetaParser makes a parser for an n-variable model.
func NewBetaParser(report ReportConfig, n int) *BetaParser {
	prefix := regexp.QuoteMeta(report.VarPrefix)
	return &BetaParser{
		blockLabel: report.BlockLabel,
		rowLabel:   regexp.MustCompile(fmt.Sprintf(`^\s*%s\s+(\d+)`, prefix)),
		colLabel:   regexp.MustCompile(fmt.Sprintf(`%s\s+(\d+)`, prefix)),
		n:          n,
	}
}

// Parse builds the coefficient matrix from every BETA block in section.
// Lines that fit no expected pattern are skipped.
func (p *BetaParser) Parse(section []string) *CoefficientMatrix {
	cm := NewCoefficientMatrix(p.n)
	for _, block := range p.blocks(section) {
		p.parseBlock(block, cm)
	}
	return cm
}

// blocks splits section at lines holding only the block label.
// Text before the first label belongs to no block.
func (p *BetaParser) blocks(section []string) [][]string {
	var starts []int
	for i, line := range section {
		if strings.TrimSpace(line) == p.blockLabel {
			starts = append(starts, i)
		}
	}

	blocks := make([][]string, 0, len(starts))
	for k, s := range starts {
		end := len(section)
		if k+1 < len(starts) {
			end = starts[k+1]
		}
		blocks = append(blocks, section[s+1:end])
	}
	return blocks
}

func (p *BetaParser) parseBlock(block []string, cm *CoefficientMatrix) {
	// header is the first non-blank line
	h := 0
	for h < len(block) && strings.TrimSpace(block[h]) == "" {
		h++
	}
	if h == len(block) {
		return
	}
	cols := p.columns(block[h])

	for i := h + 1; i < len(block); i++ {
		m := p.rowLabel.FindStringSubmatch(block[i])
		if m == nil {
			continue
		}
		row, err := strconv.Atoi(m[1])
		if err != nil || row < 1 || row > p.n {
			continue
		}
		row--

		estimates := splitColumns(block[i])[1:]

		// The two lines after the row label are read by position, so a row
		// whose estimates are all fixed never shifts what the next row sees.
		var ses, ts []string
		if !allPlaceholders(estimates) {
			if i+1 < len(block) {
				ses = splitColumns(block[i+1])
			}
			if i+2 < len(block) {
				ts = splitColumns(block[i+2])
			}
		}

		for j, tok := range estimates {
			if j >= len(cols) {
				break
			}
			entry := MissingEntry()
			entry.Estimate = ParseToken(tok)
			if !IsMissing(entry.Estimate) && len(ses) > 0 && len(ts) > 0 {
				entry.StandardError = ParseToken(stripBrackets(ses[0]))
				entry.TValue = ParseToken(ts[0])
				ses, ts = ses[1:], ts[1:]
			}
			cm.Set(row, cols[j], entry)
		}
	}
}

// columns returns the 0-based variable index of every header label.
// Unusable labels map to -1 so positions stay aligned.
func (p *BetaParser) columns(header string) []int {
	matches := p.colLabel.FindAllStringSubmatch(header, -1)
	cols := make([]int, 0, len(matches))
	for _, m := range matches {
		c, err := strconv.Atoi(m[1])
		if err != nil {
			c = 0
		}
		cols = append(cols, c-1)
	}
	return cols
}

// splitColumns splits a line on runs of two or more spaces.
// A blank line has no tokens.
func splitColumns(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	return columnGap.Split(line, -1)
}

// allPlaceholders reports whether every token is a fixed-parameter dash.
// An empty row counts as all placeholders.
func allPlaceholders(tokens []string) bool {
	for _, t := range tokens {
		if t != "- -" && t != "--" {
			return false
		}
	}
	return true
}

// stripBrackets drops one opening and one closing bracket.
func stripBrackets(tok string) string {
	tok = strings.TrimSpace(tok)
	if tok != "" && strings.ContainsRune("([", rune(tok[0])) {
		tok = tok[1:]
	}
	if tok != "" && strings.ContainsRune(")]", rune(tok[len(tok)-1])) {
		tok = tok[:len(tok)-1]
	}
	return tok
}

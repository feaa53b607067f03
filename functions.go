// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: LISREL Output Extraction for GIMME Model Refitting
// Class: 02-613 at Caregie Mellon University

package main

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// ParseToken turns one LISREL token into a number.
// Standard errors come wrapped in parentheses, which are dropped.
// "- -", "--", blank tokens and anything that does not parse give Missing.
func ParseToken(token string) float64 {
	token = strings.TrimSpace(token)
	switch token {
	case "- -", "--", "":
		return Missing
	}

	token = strings.TrimPrefix(token, "(")
	token = strings.TrimSuffix(token, ")")

	v, err := strconv.ParseFloat(strings.TrimSpace(token), 64)
	if err != nil {
		return Missing
	}
	return v
}

// Count returns how many thresholds the observed statistics meet.
// A statistic that has not been seen yet never counts.
func (r AcceptanceConfig) Count(st FitStatistics) int {
	n := 0
	if st.RMSEA != nil && *st.RMSEA <= r.RMSEAMax {
		n++
	}
	if st.NNFI != nil && *st.NNFI >= r.NNFIMin {
		n++
	}
	if st.CFI != nil && *st.CFI >= r.CFIMin {
		n++
	}
	if st.SRMR != nil && *st.SRMR <= r.SRMRMax {
		n++
	}
	return n
}

// ModelScanner walks a report and picks the model iteration to extract.
type ModelScanner struct {
	report ReportConfig
	rule   AcceptanceConfig
}

// NewModelScanner makes a scanner for the given markers and acceptance rule.
func NewModelScanner(report ReportConfig, rule AcceptanceConfig) *ModelScanner {
	return &ModelScanner{report: report, rule: rule}
}

// Search returns the first model whose fit section meets the acceptance rule.
// If none does, the last model in the report is returned with StatusFallback.
//
// The rule is checked again after every statistic line, so a section can be
// accepted before its remaining statistics are read.
// Fit sections that appear before any model-start marker are ignored.
func (s *ModelScanner) Search(lines []string) AcceptanceDecision {
	start := -1
	var stats FitStatistics
	criteria := 0

	for i, line := range lines {
		if strings.Contains(line, s.report.ModelStart) {
			start = i
		}
		if start < 0 || !strings.Contains(line, s.report.FitSection) {
			continue
		}

		// every fit section starts from nothing
		stats = FitStatistics{}
		criteria = 0

		for j := i + 1; j < len(lines); j++ {
			if strings.Contains(lines[j], s.report.ModelStart) {
				break
			}
			if !s.observe(&stats, lines[j]) {
				continue
			}
			criteria = s.rule.Count(stats)
			if criteria >= s.rule.Required {
				return AcceptanceDecision{
					Status:     StatusAccepted,
					StartIndex: start,
					Stats:      stats,
					Criteria:   criteria,
				}
			}
		}
	}

	if start < 0 {
		return AcceptanceDecision{Status: StatusNoModel, StartIndex: -1}
	}
	return AcceptanceDecision{
		Status:     StatusFallback,
		StartIndex: start,
		Stats:      stats,
		Criteria:   criteria,
	}
}

// First returns the first model in the report without looking at fit.
// This is what single-estimation output needs.
func (s *ModelScanner) First(lines []string) AcceptanceDecision {
	for i, line := range lines {
		if strings.Contains(line, s.report.ModelStart) {
			return AcceptanceDecision{Status: StatusSingle, StartIndex: i}
		}
	}
	return AcceptanceDecision{Status: StatusNoModel, StartIndex: -1}
}

// observe records a statistic if the line carries one of the four labels.
// The value is the last whitespace-separated field of the line.
func (s *ModelScanner) observe(st *FitStatistics, line string) bool {
	var target **float64
	switch {
	case strings.Contains(line, s.report.RMSEALabel):
		target = &st.RMSEA
	case strings.Contains(line, s.report.NNFILabel):
		target = &st.NNFI
	case strings.Contains(line, s.report.CFILabel):
		target = &st.CFI
	case strings.Contains(line, s.report.SRMRLabel):
		target = &st.SRMR
	default:
		return false
	}

	fields := strings.Fields(line)
	v := ParseToken(fields[len(fields)-1])
	if IsMissing(v) {
		return false
	}
	*target = &v
	return true
}

// ExtractSection returns the lines after the model-start marker at start,
// up to but not including the first line containing terminator.
// Without a terminator the rest of the report is returned.
func ExtractSection(lines []string, start int, terminator string) []string {
	if start < 0 || start >= len(lines) {
		return nil
	}

	end := len(lines)
	for j := start + 1; j < len(lines); j++ {
		if strings.Contains(lines[j], terminator) {
			end = j
			break
		}
	}
	return lines[start+1 : end]
}

// DeriveTables projects the coefficient matrix into the three numeric tables
// and the binary structure matrix. Lagged rows are dropped since lagged
// variables are never outcomes.
func DeriveTables(cm *CoefficientMatrix, dims DimensionsConfig, prefix string) *DerivedTables {
	n := cm.N
	lagged := dims.Lagged
	if lagged >= n {
		lagged = n - 1
	}
	rows := n - lagged

	structure := mat.NewDense(rows, n, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < n; j++ {
			v := cm.Estimate.At(i+lagged, j)
			if !IsMissing(v) && v != 0 {
				structure.Set(i, j, 1)
			}
		}
	}

	return &DerivedTables{
		Estimate:      fillMissing(cm.Estimate.Slice(lagged, n, 0, n)),
		StandardError: fillMissing(cm.StandardError.Slice(lagged, n, 0, n)),
		TValue:        fillMissing(cm.TValue.Slice(lagged, n, 0, n)),
		Structure:     structure,
		RowLabels:     varLabels(prefix, lagged, n),
		ColLabels:     varLabels(prefix, 0, n),
		Lagged:        lagged,
	}
}

// fillMissing copies m with every Missing value set to 0.
func fillMissing(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); !IsMissing(v) {
				out.Set(i, j, v)
			}
		}
	}
	return out
}

// varLabels gives "VAR from+1" ... "VAR to".
func varLabels(prefix string, from, to int) []string {
	labels := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		labels = append(labels, fmt.Sprintf("%s %d", prefix, i+1))
	}
	return labels
}

// What kind of report is being read
type Mode int

const (
	// Automatic search output: many iterations, pick by fit
	ModeSearch Mode = iota
	// Single estimation output: one model
	ModeSingle
)

// Pipeline runs scanner, extractor, parser and deriver over one report.
type Pipeline struct {
	cfg     Config
	scanner *ModelScanner
	parser  *BetaParser
	logger  *zap.Logger
}

// NewPipeline wires the pipeline stages from cfg.
func NewPipeline(cfg Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		scanner: NewModelScanner(cfg.Report, cfg.Acceptance),
		parser:  NewBetaParser(cfg.Report, cfg.Dimensions.Variables),
		logger:  logger,
	}
}

// Run extracts one report. A report without any model returns the decision
// together with an error wrapping ErrNoModel, and nothing else.
func (p *Pipeline) Run(report *Report, mode Mode) (*Extraction, error) {
	participant, ok := ParticipantID(report.Name)
	log := p.logger.With(zap.String("file", report.Name), zap.String("participant", participant))
	if !ok {
		log.Warn("no 5-digit participant id in file name, using file stem")
	}

	// 1. Pick the model
	var decision AcceptanceDecision
	if mode == ModeSingle {
		decision = p.scanner.First(report.Lines)
	} else {
		decision = p.scanner.Search(report.Lines)
	}

	ex := &Extraction{Participant: participant, Decision: decision}

	switch decision.Status {
	case StatusAccepted:
		log.Info("found a model with excellent fit", fitFields(decision)...)
	case StatusFallback:
		log.Warn("no model with excellent fit, extracting the final model", fitFields(decision)...)
	case StatusSingle:
		log.Info("extracting single estimation model", fitFields(decision)...)
	default:
		log.Warn("no model start marker in report", zap.String("marker", p.cfg.Report.ModelStart))
		return ex, fmt.Errorf("%s: %w", report.Name, ErrNoModel)
	}

	// 2. Slice out its coefficient section
	ex.Section = ExtractSection(report.Lines, decision.StartIndex, p.cfg.Report.Terminator)

	// 3. Parse the BETA blocks
	ex.Matrix = p.parser.Parse(ex.Section)

	// 4. Trim and binarize
	ex.Tables = DeriveTables(ex.Matrix, p.cfg.Dimensions, p.cfg.Report.VarPrefix)

	log.Debug("parsed coefficient matrix",
		zap.Int("section_lines", len(ex.Section)),
		zap.Int("filled_cells", ex.Matrix.Filled()),
	)
	return ex, nil
}

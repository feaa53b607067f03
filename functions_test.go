// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: LISREL Output Extraction for GIMME Model Refitting
// Class: 02-613 at Caregie Mellon University

package main

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"
)

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

// almostEqual compares floats with tolerance
func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// ReadDirectory reads all files in a directory
func ReadDirectory(directory string) []os.DirEntry {
	files, err := os.ReadDir(directory)
	if err != nil {
		panic(fmt.Sprintf("Error reading directory %s: %v", directory, err))
	}
	return files
}

// skipComments reads lines from scanner, skipping comment lines starting with #
func skipComments(scanner *bufio.Scanner) string {
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return ""
}

// readFixtureValues returns every non-comment line of a fixture file
func readFixtureValues(file string, n int) []string {
	f, err := os.Open(file)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make([]string, n)
	for i := 0; i < n; i++ {
		values[i] = skipComments(scanner)
	}
	return values
}

// nopPipeline is a pipeline with default settings and a silent logger
func nopPipeline() *Pipeline {
	return NewPipeline(DefaultConfig(), zap.NewNop())
}

// ============================================================================
// TOKEN PARSER TESTS
// ============================================================================

type ParseTokenTest struct {
	Token   string
	Missing bool
	Result  float64
}

func ReadParseTokenTests(directory string) []ParseTokenTest {
	inputFiles := ReadDirectory(directory + "input")
	outputFiles := ReadDirectory(directory + "output")

	if len(inputFiles) != len(outputFiles) {
		panic("Error: number of input and output files do not match!")
	}

	tests := make([]ParseTokenTest, len(inputFiles))
	for i, inputFile := range inputFiles {
		quoted := readFixtureValues(directory+"input/"+inputFile.Name(), 1)[0]
		token, err := strconv.Unquote(quoted)
		if err != nil {
			panic(fmt.Sprintf("Error unquoting token %s: %v", quoted, err))
		}
		tests[i].Token = token
	}

	for i, outputFile := range outputFiles {
		expected := readFixtureValues(directory+"output/"+outputFile.Name(), 1)[0]
		if expected == "missing" {
			tests[i].Missing = true
			continue
		}
		v, err := strconv.ParseFloat(expected, 64)
		if err != nil {
			panic(fmt.Sprintf("Error parsing expected value: %v", err))
		}
		tests[i].Result = v
	}

	return tests
}

func TestParseToken(t *testing.T) {
	tests := ReadParseTokenTests("Tests/ParseToken/")
	require.NotEmpty(t, tests)

	for i, test := range tests {
		got := ParseToken(test.Token)
		if test.Missing {
			if !IsMissing(got) {
				t.Errorf("Test %d: ParseToken(%q) = %v; want missing", i+1, test.Token, got)
			}
			continue
		}
		if !almostEqual(got, test.Result, 1e-12) {
			t.Errorf("Test %d: ParseToken(%q) = %v; want %v", i+1, test.Token, got, test.Result)
		}
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	values := []float64{0, 1, -1, 0.42, -0.0625, 3.14159265, 1e-7, 12345.678}
	for _, v := range values {
		assert.True(t, almostEqual(ParseToken(formatValue(v)), v, 1e-12), "value %v", v)
		assert.True(t, almostEqual(ParseToken("("+formatValue(v)+")"), v, 1e-12), "value (%v)", v)
	}
}

// ============================================================================
// MODEL-ACCEPTANCE SCANNER TESTS
// ============================================================================

type SearchModelTest struct {
	Lines    []string
	Status   string
	Start    int
	Criteria int
}

func ReadSearchModelTests(directory string) []SearchModelTest {
	inputFiles := ReadDirectory(directory + "input")
	outputFiles := ReadDirectory(directory + "output")

	if len(inputFiles) != len(outputFiles) {
		panic("Error: number of input and output files do not match!")
	}

	tests := make([]SearchModelTest, len(inputFiles))
	for i, inputFile := range inputFiles {
		report, err := LoadReport(directory+"input/"+inputFile.Name(), "ISO-8859-1")
		if err != nil {
			panic(err)
		}
		tests[i].Lines = report.Lines
	}

	for i, outputFile := range outputFiles {
		values := readFixtureValues(directory+"output/"+outputFile.Name(), 3)
		tests[i].Status = values[0]
		tests[i].Start, _ = strconv.Atoi(values[1])
		tests[i].Criteria, _ = strconv.Atoi(values[2])
	}

	return tests
}

func TestSearchModel(t *testing.T) {
	tests := ReadSearchModelTests("Tests/SearchModel/")
	require.NotEmpty(t, tests)

	cfg := DefaultConfig()
	scanner := NewModelScanner(cfg.Report, cfg.Acceptance)

	for i, test := range tests {
		got := scanner.Search(test.Lines)
		if got.Status.String() != test.Status {
			t.Errorf("Test %d: status = %s; want %s", i+1, got.Status, test.Status)
		}
		if got.StartIndex != test.Start {
			t.Errorf("Test %d: start = %d; want %d", i+1, got.StartIndex, test.Start)
		}
		if got.Criteria != test.Criteria {
			t.Errorf("Test %d: criteria = %d; want %d", i+1, got.Criteria, test.Criteria)
		}
	}
}

func TestSearchModelStopsBeforeRemainingStatistics(t *testing.T) {
	report, err := LoadReport("Tests/SearchModel/input/report_04.txt", "ISO-8859-1")
	require.NoError(t, err)

	cfg := DefaultConfig()
	got := NewModelScanner(cfg.Report, cfg.Acceptance).Search(report.Lines)

	require.Equal(t, StatusAccepted, got.Status)
	require.NotNil(t, got.Stats.RMSEA)
	require.NotNil(t, got.Stats.NNFI)
	assert.InDelta(t, 0.020, *got.Stats.RMSEA, 1e-12)
	assert.InDelta(t, 0.97, *got.Stats.NNFI, 1e-12)
	// CFI and SRMR follow in the report but are never read
	assert.Nil(t, got.Stats.CFI)
	assert.Nil(t, got.Stats.SRMR)
}

func TestAcceptanceCount(t *testing.T) {
	rule := DefaultConfig().Acceptance
	f := func(v float64) *float64 { return &v }

	assert.Equal(t, 0, rule.Count(FitStatistics{}))
	assert.Equal(t, 4, rule.Count(FitStatistics{RMSEA: f(0.05), NNFI: f(0.95), CFI: f(0.95), SRMR: f(0.05)}))
	assert.Equal(t, 0, rule.Count(FitStatistics{RMSEA: f(0.051), NNFI: f(0.949), CFI: f(0.5), SRMR: f(0.2)}))
	assert.Equal(t, 1, rule.Count(FitStatistics{RMSEA: f(0)}))
	assert.Equal(t, 2, rule.Count(FitStatistics{CFI: f(1), SRMR: f(0.01)}))
}

func TestSearchModelIgnoresUnparseableStatistic(t *testing.T) {
	cfg := DefaultConfig()
	lines := []string{
		" LISREL Estimates (Maximum Likelihood)",
		" Goodness of Fit Statistics",
		"   Root Mean Square Error of Approximation (RMSEA) = ******",
		"   Non-Normed Fit Index (NNFI) = 0.99",
	}

	got := NewModelScanner(cfg.Report, cfg.Acceptance).Search(lines)

	assert.Equal(t, StatusFallback, got.Status)
	assert.Equal(t, 0, got.StartIndex)
	assert.Equal(t, 1, got.Criteria)
	assert.Nil(t, got.Stats.RMSEA)
}

func TestFirstModel(t *testing.T) {
	report, err := LoadReport("Tests/SearchModel/input/report_01.txt", "ISO-8859-1")
	require.NoError(t, err)

	cfg := DefaultConfig()
	scanner := NewModelScanner(cfg.Report, cfg.Acceptance)

	got := scanner.First(report.Lines)
	assert.Equal(t, StatusSingle, got.Status)
	assert.Equal(t, 7, got.StartIndex)

	none := scanner.First([]string{"nothing", "to see"})
	assert.Equal(t, StatusNoModel, none.Status)
	assert.False(t, none.Found())
}

// ============================================================================
// SECTION EXTRACTOR TESTS
// ============================================================================

func TestExtractSection(t *testing.T) {
	lines := []string{
		"preamble",
		" LISREL Estimates (Maximum Likelihood)",
		"   BETA",
		"   VAR 19  0.1",
		" Covariance Matrix of ETA",
		"   after",
	}

	got := ExtractSection(lines, 1, "Covariance Matrix of ETA")
	assert.Equal(t, []string{"   BETA", "   VAR 19  0.1"}, got)

	// no terminator: everything after the marker
	got = ExtractSection(lines[:4], 1, "Covariance Matrix of ETA")
	assert.Equal(t, []string{"   BETA", "   VAR 19  0.1"}, got)

	// terminator right after the marker
	got = ExtractSection(lines[3:], 0, "Covariance Matrix of ETA")
	assert.Empty(t, got)

	assert.Nil(t, ExtractSection(lines, -1, "Covariance Matrix of ETA"))
	assert.Nil(t, ExtractSection(lines, len(lines), "Covariance Matrix of ETA"))
}

func TestExtractSectionTerminatorBeforeStartIsIgnored(t *testing.T) {
	lines := []string{
		" Covariance Matrix of ETA",
		" LISREL Estimates (Maximum Likelihood)",
		"   a",
		"   b",
	}
	got := ExtractSection(lines, 1, "Covariance Matrix of ETA")
	assert.Equal(t, []string{"   a", "   b"}, got)
}

// ============================================================================
// MATRIX DERIVER TESTS
// ============================================================================

func TestDeriveTables(t *testing.T) {
	cfg := DefaultConfig()
	cm := NewCoefficientMatrix(36)
	cm.Set(18, 0, CoefficientEntry{Estimate: 0.31, StandardError: 0.06, TValue: 5.17})
	cm.Set(35, 35, CoefficientEntry{Estimate: -0.2, StandardError: Missing, TValue: Missing})
	// present but zero: kept in the tables, not a path
	cm.Set(20, 3, CoefficientEntry{Estimate: 0, StandardError: 0.01, TValue: 0})
	// lagged rows are trimmed
	cm.Set(2, 2, CoefficientEntry{Estimate: 0.9, StandardError: 0.1, TValue: 9})

	tables := DeriveTables(cm, cfg.Dimensions, cfg.Report.VarPrefix)

	r, c := tables.Estimate.Dims()
	assert.Equal(t, 18, r)
	assert.Equal(t, 36, c)
	assert.Equal(t, "VAR 19", tables.RowLabels[0])
	assert.Equal(t, "VAR 36", tables.RowLabels[17])
	assert.Equal(t, "VAR 1", tables.ColLabels[0])
	assert.Len(t, tables.ColLabels, 36)

	assert.Equal(t, 0.31, tables.Estimate.At(0, 0))
	assert.Equal(t, 0.06, tables.StandardError.At(0, 0))
	assert.Equal(t, 5.17, tables.TValue.At(0, 0))
	assert.Equal(t, -0.2, tables.Estimate.At(17, 35))
	assert.Equal(t, 0.0, tables.StandardError.At(17, 35))
	assert.Equal(t, 0.01, tables.StandardError.At(2, 3))

	assert.Equal(t, 1.0, tables.Structure.At(0, 0))
	assert.Equal(t, 1.0, tables.Structure.At(17, 35))
	assert.Equal(t, 0.0, tables.Structure.At(2, 3))
	assert.Equal(t, 2.0, mat.Sum(tables.Structure))

	for _, m := range []*mat.Dense{tables.Estimate, tables.StandardError, tables.TValue} {
		r, c := m.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				require.False(t, IsMissing(m.At(i, j)), "missing left at (%d,%d)", i, j)
			}
		}
	}
}

func TestDeriveTablesAlwaysEighteenRows(t *testing.T) {
	cfg := DefaultConfig()

	empty := DeriveTables(NewCoefficientMatrix(36), cfg.Dimensions, "VAR")
	r, _ := empty.Structure.Dims()
	assert.Equal(t, 18, r)
	assert.Equal(t, 0.0, mat.Sum(empty.Structure))

	full := NewCoefficientMatrix(36)
	for i := 0; i < 36; i++ {
		for j := 0; j < 36; j++ {
			full.Set(i, j, CoefficientEntry{Estimate: 1, StandardError: 1, TValue: 1})
		}
	}
	tables := DeriveTables(full, cfg.Dimensions, "VAR")
	r, _ = tables.Structure.Dims()
	assert.Equal(t, 18, r)
	assert.Equal(t, float64(18*36), mat.Sum(tables.Structure))
}

func TestDeriveTablesIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cm := NewCoefficientMatrix(36)
	cm.Set(19, 4, CoefficientEntry{Estimate: 0.5, StandardError: 0.1, TValue: 5})
	cm.Set(30, 20, CoefficientEntry{Estimate: -0.3, StandardError: Missing, TValue: Missing})

	a := DeriveTables(cm, cfg.Dimensions, "VAR")
	b := DeriveTables(cm, cfg.Dimensions, "VAR")

	assert.True(t, mat.Equal(a.Estimate, b.Estimate))
	assert.True(t, mat.Equal(a.StandardError, b.StandardError))
	assert.True(t, mat.Equal(a.TValue, b.TValue))
	assert.True(t, mat.Equal(a.Structure, b.Structure))
	// source matrix untouched
	assert.True(t, IsMissing(cm.StandardError.At(30, 20)))
}

func TestDeriveTablesCustomDimensions(t *testing.T) {
	cm := NewCoefficientMatrix(4)
	cm.Set(3, 1, CoefficientEntry{Estimate: 0.7, StandardError: 0.1, TValue: 7})

	tables := DeriveTables(cm, DimensionsConfig{Variables: 4, Lagged: 2}, "X")

	r, c := tables.Structure.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 4, c)
	assert.Equal(t, []string{"X 3", "X 4"}, tables.RowLabels)
	assert.Equal(t, 1.0, tables.Structure.At(1, 1))
}

// ============================================================================
// PIPELINE TESTS
// ============================================================================

// syntheticReport is a 40 line report with one BETA block: a three column
// header and two row groups, VAR 19 and VAR 20.
var syntheticReport = []string{
	" DATE: 12/ 1/2025",
	"  TIME: 10:15",
	"",
	"                                L I S R E L  8.80",
	"",
	" Number of Iterations = 9",
	"",
	" LISREL Estimates (Maximum Likelihood)",
	"",
	"         LAMBDA-Y",
	"",
	"         EQUALS THE IDENTITY MATRIX",
	"",
	"         BETA",
	"",
	"               VAR 1      VAR 2      VAR 19",
	"            --------   --------   --------",
	"    VAR 19      0.31       - -        - -",
	"              (0.06)",
	"                5.17",
	"",
	"    VAR 20      - -       -0.22       - -",
	"                         (0.08)",
	"                         -2.75",
	"",
	" Covariance Matrix of ETA",
	"",
	"               VAR 19     VAR 20",
	"            --------   --------",
	"    VAR 19      1.00",
	"    VAR 20      0.12       1.00",
	"",
	"                           Goodness of Fit Statistics",
	"",
	"                             Degrees of Freedom = 512",
	"               Root Mean Square Error of Approximation (RMSEA) = 0.041",
	"                            Non-Normed Fit Index (NNFI) = 0.97",
	"                            Comparative Fit Index (CFI) = 0.98",
	"                                       Standardized RMR = 0.044",
	"",
}

func TestPipelineEndToEnd(t *testing.T) {
	require.Len(t, syntheticReport, 40)

	ex, err := nopPipeline().Run(&Report{Name: "o10005.txt", Lines: syntheticReport}, ModeSearch)
	require.NoError(t, err)

	assert.Equal(t, "10005", ex.Participant)
	assert.Equal(t, StatusAccepted, ex.Decision.Status)
	assert.Equal(t, 7, ex.Decision.StartIndex)
	assert.Equal(t, syntheticReport[8:25], ex.Section)

	assert.Equal(t, 2, ex.Matrix.Filled())

	e := ex.Matrix.At(18, 0)
	assert.Equal(t, 0.31, e.Estimate)
	assert.Equal(t, 0.06, e.StandardError)
	assert.Equal(t, 5.17, e.TValue)

	e = ex.Matrix.At(19, 1)
	assert.Equal(t, -0.22, e.Estimate)
	assert.Equal(t, 0.08, e.StandardError)
	assert.Equal(t, -2.75, e.TValue)

	assert.Equal(t, 2.0, mat.Sum(ex.Tables.Structure))
	assert.Equal(t, 1.0, ex.Tables.Structure.At(0, 0))
	assert.Equal(t, 1.0, ex.Tables.Structure.At(1, 1))
}

func TestPipelineNoModel(t *testing.T) {
	ex, err := nopPipeline().Run(&Report{Name: "o20002.txt", Lines: []string{"no estimates here"}}, ModeSearch)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoModel))
	require.NotNil(t, ex)
	assert.Equal(t, StatusNoModel, ex.Decision.Status)
	assert.Nil(t, ex.Matrix)
	assert.Nil(t, ex.Tables)
}

func TestPipelineSingleMode(t *testing.T) {
	report, err := LoadReport("Tests/SearchModel/input/report_01.txt", "ISO-8859-1")
	require.NoError(t, err)
	report.Name = "sub_30003_single.txt"

	ex, err := nopPipeline().Run(report, ModeSingle)
	require.NoError(t, err)

	// the first model, even though it does not fit
	assert.Equal(t, StatusSingle, ex.Decision.Status)
	assert.Equal(t, 7, ex.Decision.StartIndex)
	assert.Equal(t, "30003", ex.Participant)
	assert.Equal(t, 0.31, ex.Matrix.At(18, 0).Estimate)
}

func TestPipelineLogsDecision(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	p := NewPipeline(DefaultConfig(), zap.New(core))

	report, err := LoadReport("Tests/SearchModel/input/report_02.txt", "ISO-8859-1")
	require.NoError(t, err)

	_, err = p.Run(report, ModeSearch)
	require.NoError(t, err)

	logs := observed.FilterMessage("no model with excellent fit, extracting the final model").All()
	require.Len(t, logs, 1)
	assert.Equal(t, zapcore.WarnLevel, logs[0].Level)

	fields := logs[0].ContextMap()
	assert.Equal(t, "fallback", fields["status"])
	assert.Equal(t, int64(1), fields["criteria"])
	assert.Equal(t, int64(56), fields["model_start_line"])
}

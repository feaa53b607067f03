// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: LISREL Output Extraction for GIMME Model Refitting
// Class: 02-613 at Caregie Mellon University

package main

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
	"gonum.org/v1/gonum/mat"
)

var participantPattern = regexp.MustCompile(`\d{5}`)

// LoadReport reads a LISREL output file in the given single-byte encoding.
func LoadReport(path, encoding string) (*Report, error) {
	enc, err := ianaindex.IANA.Encoding(encoding)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%q: %w", encoding, ErrUnknownEncoding)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(transform.NewReader(f, enc.NewDecoder()))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return &Report{Name: filepath.Base(path), Lines: lines}, nil
}

// ParticipantID returns the first 5-digit run in a file name.
// Without one the file stem is returned and ok is false.
func ParticipantID(name string) (id string, ok bool) {
	base := filepath.Base(name)
	if m := participantPattern.FindString(base); m != "" {
		return m, true
	}
	return strings.TrimSuffix(base, filepath.Ext(base)), false
}

// ArtifactPaths are the files written for one participant.
type ArtifactPaths struct {
	Dir       string
	Section   string
	Estimate  string
	StdErr    string
	TValue    string
	Structure string
	Workbook  string
}

// NewArtifactPaths lays out outputDir/<id>/<id>_*.
func NewArtifactPaths(outputDir, participant string) ArtifactPaths {
	dir := filepath.Join(outputDir, participant)
	name := func(suffix string) string {
		return filepath.Join(dir, participant+suffix)
	}
	return ArtifactPaths{
		Dir:       dir,
		Section:   name("_extracted.txt"),
		Estimate:  name("_beta.csv"),
		StdErr:    name("_se.csv"),
		TValue:    name("_tval.csv"),
		Structure: name("_extractedAM_matrix.txt"),
		Workbook:  name("_tables.xlsx"),
	}
}

// WriteArtifacts writes the section, the three tables and the structure
// matrix. The workbook is only written when asked for.
func WriteArtifacts(paths ArtifactPaths, ex *Extraction, workbook bool) error {
	if err := os.MkdirAll(paths.Dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", paths.Dir, err)
	}

	if err := WriteSection(paths.Section, ex.Section); err != nil {
		return err
	}

	t := ex.Tables
	tables := []struct {
		path string
		m    *mat.Dense
	}{
		{paths.Estimate, t.Estimate},
		{paths.StdErr, t.StandardError},
		{paths.TValue, t.TValue},
	}
	for _, tb := range tables {
		if err := WriteTableCSV(tb.path, tb.m, t.RowLabels, t.ColLabels); err != nil {
			return err
		}
	}

	if err := os.WriteFile(paths.Structure, []byte(FormatStructure(t.Structure, t.Lagged)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", paths.Structure, err)
	}

	if workbook {
		if err := WriteWorkbook(paths.Workbook, t); err != nil {
			return err
		}
	}
	return nil
}

// WriteSection writes the extracted lines verbatim as UTF-8.
func WriteSection(path string, lines []string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteTableCSV writes a labeled table. The first header cell is empty and
// each row starts with its label.
func WriteTableCSV(path string, m *mat.Dense, rowLabels, colLabels []string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := append([]string{""}, colLabels...)
	if err := writer.Write(header); err != nil {
		return err
	}

	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		record := make([]string, 0, cols+1)
		record = append(record, rowLabels[i])
		for j := 0; j < cols; j++ {
			record = append(record, formatValue(m.At(i, j)))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// FormatStructure renders the binary matrix one row per line, values
// separated by two spaces and an extra gap after the lagged columns.
func FormatStructure(m *mat.Dense, lagged int) string {
	rows, cols := m.Dims()
	var sb strings.Builder
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if j > 0 {
				sb.WriteString("  ")
				if j == lagged {
					sb.WriteString("  ")
				}
			}
			sb.WriteString(strconv.Itoa(int(m.At(i, j))))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// WriteWorkbook writes the three tables as sheets of one xlsx file.
func WriteWorkbook(path string, t *DerivedTables) error {
	f := excelize.NewFile()
	defer f.Close()

	sheets := []struct {
		name string
		m    *mat.Dense
	}{
		{"beta", t.Estimate},
		{"se", t.StandardError},
		{"tval", t.TValue},
	}

	for _, s := range sheets {
		if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("add sheet %s: %w", s.name, err)
		}

		header := make([]interface{}, 0, len(t.ColLabels)+1)
		header = append(header, "")
		for _, l := range t.ColLabels {
			header = append(header, l)
		}
		if err := f.SetSheetRow(s.name, "A1", &header); err != nil {
			return fmt.Errorf("write sheet %s: %w", s.name, err)
		}

		rows, cols := s.m.Dims()
		for i := 0; i < rows; i++ {
			record := make([]interface{}, 0, cols+1)
			record = append(record, t.RowLabels[i])
			for j := 0; j < cols; j++ {
				record = append(record, s.m.At(i, j))
			}
			cell, err := excelize.CoordinatesToCellName(1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(s.name, cell, &record); err != nil {
				return fmt.Errorf("write sheet %s: %w", s.name, err)
			}
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// WriteBatchLog writes one row per processed report.
// Columns: file, participant, status, model_start_line, criteria, rmsea, nnfi, cfi, srmr, error
func WriteBatchLog(path string, entries []BatchEntry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"file", "participant", "status", "model_start_line", "criteria", "rmsea", "nnfi", "cfi", "srmr", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, e := range entries {
		d := e.Decision
		startLine := ""
		if d.Found() {
			startLine = strconv.Itoa(d.StartIndex + 1)
		}
		errMsg := ""
		if e.Err != nil {
			errMsg = e.Err.Error()
		}
		record := []string{
			e.File,
			e.Participant,
			e.Status(),
			startLine,
			strconv.Itoa(d.Criteria),
			formatOptional(d.Stats.RMSEA),
			formatOptional(d.Stats.NNFI),
			formatOptional(d.Stats.CFI),
			formatOptional(d.Stats.SRMR),
			errMsg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatValue(*v)
}

// PrintTables prints the estimate matrix of one extraction to stdout.
func PrintTables(ex *Extraction) {
	fmt.Printf("\n=== BETA estimates (%s) ===\n", ex.Participant)
	fmt.Printf("rows: %s .. %s\n", ex.Tables.RowLabels[0], ex.Tables.RowLabels[len(ex.Tables.RowLabels)-1])
	fmt.Printf("%v\n", mat.Formatted(ex.Tables.Estimate, mat.Prefix(" "), mat.Squeeze()))

	fmt.Println("\n=== Structure matrix ===")
	fmt.Print(FormatStructure(ex.Tables.Structure, ex.Tables.Lagged))
}

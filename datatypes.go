// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: LISREL Output Extraction for GIMME Model Refitting
// Class: 02-613 at Caregie Mellon University

package main

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNoModel is returned when a report never contains a model-start marker.
// It is kept apart from a fitted model whose paths are all zero.
var ErrNoModel = errors.New("no model found in report")

// ErrUnknownEncoding is returned when the configured report encoding has no decoder.
var ErrUnknownEncoding = errors.New("unknown report encoding")

// Missing is the marker used for an absent numeric value.
// Tokens like "- -" and anything that fails to parse become Missing.
var Missing = math.NaN()

// IsMissing reports whether v is the missing marker.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Report is one LISREL output file split into lines.
type Report struct {
	// Name of the file the report came from
	Name string
	// Lines without their line terminators
	Lines []string
}

// FitStatistics holds the goodness of fit values seen in the current
// fit section. A nil field has not been observed yet.
type FitStatistics struct {
	RMSEA *float64 // Root Mean Square Error of Approximation
	NNFI  *float64 // Non-Normed Fit Index
	CFI   *float64 // Comparative Fit Index
	SRMR  *float64 // Standardized RMR
}

// What kind of decision the scanner made
type DecisionStatus int

const (
	StatusNoModel DecisionStatus = iota
	StatusAccepted
	StatusFallback
	StatusSingle
)

// String gives the name used in logs and in the batch log.
func (s DecisionStatus) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusFallback:
		return "fallback"
	case StatusSingle:
		return "single"
	default:
		return "no_model"
	}
}

// AcceptanceDecision says which model iteration to extract and why.
type AcceptanceDecision struct {
	Status DecisionStatus
	// Line index (0-based) of the chosen model-start marker, -1 if none
	StartIndex int
	// Statistics of the fit section that triggered the decision
	Stats FitStatistics
	// Number of thresholds met when the decision was taken
	Criteria int
}

// Found reports whether the decision points at a model.
func (d AcceptanceDecision) Found() bool {
	return d.Status != StatusNoModel && d.StartIndex >= 0
}

// CoefficientEntry is one BETA cell: estimate, standard error and t-value.
// Each part may be Missing.
type CoefficientEntry struct {
	Estimate      float64
	StandardError float64
	TValue        float64
}

// MissingEntry is the default triple for a cell the parser never wrote.
func MissingEntry() CoefficientEntry {
	return CoefficientEntry{Estimate: Missing, StandardError: Missing, TValue: Missing}
}

// CoefficientMatrix is the square N x N matrix of BETA triples.
// Each component lives in its own plane so it can be projected without copying cell by cell.
type CoefficientMatrix struct {
	N int

	Estimate      *mat.Dense
	StandardError *mat.Dense
	TValue        *mat.Dense
}

// DerivedTables are the trimmed tables written out for one participant.
// Rows are the contemporaneous variables only, columns are all variables.
type DerivedTables struct {
	// Missing replaced by 0
	Estimate      *mat.Dense
	StandardError *mat.Dense
	TValue        *mat.Dense

	// 1 where the estimate is present and nonzero
	Structure *mat.Dense

	RowLabels []string
	ColLabels []string

	// Column where the contemporaneous block starts
	Lagged int
}

// Extraction is everything produced for one report.
type Extraction struct {
	Participant string
	Decision    AcceptanceDecision
	// Verbatim lines of the chosen model
	Section []string
	Matrix  *CoefficientMatrix
	Tables  *DerivedTables
}

// BatchEntry is one row of the batch log.
type BatchEntry struct {
	File        string
	Participant string
	Decision    AcceptanceDecision
	// Set when the file could not be processed
	Err error
}

// Status gives the batch log status, including failed files.
func (e BatchEntry) Status() string {
	if e.Err != nil {
		return "error"
	}
	return e.Decision.Status.String()
}

// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: LISREL Output Extraction for GIMME Model Refitting
// Class: 02-613 at Caregie Mellon University

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// batchLogName is written to the output directory after every run.
const batchLogName = "batch_log.csv"

// BatchDriver runs the pipeline over every report in a directory, one at a time.
type BatchDriver struct {
	cfg      Config
	pipeline *Pipeline
	logger   *zap.Logger
}

// NewBatchDriver tags every log line of the run with a fresh run id.
func NewBatchDriver(cfg Config, logger *zap.Logger) *BatchDriver {
	logger = logger.With(zap.String("run_id", uuid.NewString()))
	return &BatchDriver{
		cfg:      cfg,
		pipeline: NewPipeline(cfg, logger),
		logger:   logger,
	}
}

// ListReports returns the regular files in dir matching the batch pattern, sorted by name.
func (b *BatchDriver) ListReports(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, b.cfg.Batch.Pattern))
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", b.cfg.Batch.Pattern, err)
	}

	var files []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, m)
	}
	sort.Strings(files)
	return files, nil
}

// Run processes every report in dir and writes the batch log.
// A failing file is recorded and the batch moves on; only a directory that
// cannot be listed or a batch log that cannot be written stops the run.
func (b *BatchDriver) Run(dir string, mode Mode) ([]BatchEntry, error) {
	files, err := b.ListReports(dir)
	if err != nil {
		return nil, err
	}
	b.logger.Info("starting batch",
		zap.String("input_dir", dir),
		zap.String("output_dir", b.cfg.Batch.OutputDir),
		zap.Int("reports", len(files)),
	)

	entries := make([]BatchEntry, 0, len(files))
	for _, path := range files {
		entries = append(entries, b.ProcessFile(path, mode))
	}

	if err := os.MkdirAll(b.cfg.Batch.OutputDir, 0o755); err != nil {
		return entries, fmt.Errorf("create %s: %w", b.cfg.Batch.OutputDir, err)
	}
	logPath := filepath.Join(b.cfg.Batch.OutputDir, batchLogName)
	if err := WriteBatchLog(logPath, entries); err != nil {
		return entries, fmt.Errorf("write batch log: %w", err)
	}

	b.logger.Info("batch finished", zap.String("batch_log", logPath))
	return entries, nil
}

// ProcessFile runs one report start to finish and writes its artifacts.
// Reports without a model get status no_model and no artifacts.
func (b *BatchDriver) ProcessFile(path string, mode Mode) BatchEntry {
	entry := BatchEntry{File: filepath.Base(path)}
	entry.Participant, _ = ParticipantID(path)
	entry.Decision.StartIndex = -1

	log := b.logger.With(zap.String("file", entry.File))

	report, err := LoadReport(path, b.cfg.Report.Encoding)
	if err != nil {
		log.Error("could not read report", zap.Error(err))
		entry.Err = err
		return entry
	}

	ex, err := b.pipeline.Run(report, mode)
	if ex != nil {
		entry.Decision = ex.Decision
	}
	if errors.Is(err, ErrNoModel) {
		return entry
	}
	if err != nil {
		log.Error("could not extract report", zap.Error(err))
		entry.Err = err
		return entry
	}

	paths := NewArtifactPaths(b.cfg.Batch.OutputDir, ex.Participant)
	if err := WriteArtifacts(paths, ex, b.cfg.Batch.Workbook); err != nil {
		log.Error("could not write artifacts", zap.Error(err))
		entry.Err = err
		return entry
	}

	log.Info("wrote artifacts", zap.String("dir", paths.Dir))
	return entry
}

// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Dec 12th 2025
// Project: LISREL Output Extraction for GIMME Model Refitting
// Class: 02-613 at Caregie Mellon University

package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger writing to stderr so that stdout stays free
// for the batch summary.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.Lock(os.Stderr), level)
	return zap.New(core), nil
}

// newEncoder creates JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

// fitFields turns a decision into log fields. Unobserved statistics log as null.
func fitFields(d AcceptanceDecision) []zap.Field {
	return []zap.Field{
		zap.String("status", d.Status.String()),
		zap.Int("criteria", d.Criteria),
		zap.Float64p("rmsea", d.Stats.RMSEA),
		zap.Float64p("nnfi", d.Stats.NNFI),
		zap.Float64p("cfi", d.Stats.CFI),
		zap.Float64p("srmr", d.Stats.SRMR),
		zap.Int("model_start_line", d.StartIndex+1),
	}
}

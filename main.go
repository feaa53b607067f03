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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// This program extracts the fitted uSEM model from LISREL output so it can be
// fed into the next refitting round.
// "search" walks every automatic-search report in a directory, picks the first
// model with excellent fit (or the last model), and writes for each participant:
// the extracted LISREL section, the beta / se / t-value tables without lagged
// rows, and the 0/1 path matrix used as the next LISREL input.
// "single" does the same for one single-estimation report.

var version = "dev"

var (
	configPath string
	logLevel   string
	outputDir  string
	workbook   bool
	printTable bool
)

var rootCmd = &cobra.Command{
	Use:   "lisrel-extract",
	Short: "Extract beta matrices from LISREL output for GIMME refitting",
	Long: `lisrel-extract reads LISREL text output produced during GIMME model
searches and turns the chosen model's BETA section into machine readable
tables and a binary path matrix.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var searchCmd = &cobra.Command{
	Use:   "search <dir>",
	Short: "Extract the first excellent-fit model from every report in a directory",
	Long: `Extract the first model whose goodness of fit meets the acceptance rule
(by default 2 of: RMSEA <= .05, NNFI >= .95, CFI >= .95, SRMR <= .05).
Reports with no such model fall back to their final model.

Examples:
  # Process every .txt report in ./lisrel_out
  lisrel-extract search ./lisrel_out --out ./extracted`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, args[0], ModeSearch)
	},
}

var singleCmd = &cobra.Command{
	Use:   "single <file>",
	Short: "Extract the model from one single-estimation report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSingle(args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "out", "o", "", "Output directory (overrides batch.output_dir)")
	rootCmd.PersistentFlags().BoolVar(&workbook, "xlsx", false, "Also write the tables as an xlsx workbook")

	singleCmd.Flags().BoolVar(&printTable, "print", false, "Print the extracted tables")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(singleCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config, applies flag overrides and builds the logger.
func setup() (Config, *zap.Logger, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return cfg, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if outputDir != "" {
		cfg.Batch.OutputDir = outputDir
	}
	if workbook {
		cfg.Batch.Workbook = true
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

func runBatch(cmd *cobra.Command, dir string, mode Mode) error {
	// 1. Config and logger
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// 2. Run every report in the directory
	entries, err := NewBatchDriver(cfg, logger).Run(dir, mode)
	if err != nil {
		return err
	}

	// 3. Summary
	FormatBatchSummary(cmd.OutOrStdout(), entries)
	fmt.Fprintln(cmd.OutOrStdout(), "Batch log written to", filepath.Join(cfg.Batch.OutputDir, batchLogName))
	return nil
}

func runSingle(path string) error {
	// 1. Config and logger
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// 2. Load and extract
	report, err := LoadReport(path, cfg.Report.Encoding)
	if err != nil {
		return err
	}
	ex, err := NewPipeline(cfg, logger).Run(report, ModeSingle)
	if errors.Is(err, ErrNoModel) {
		return fmt.Errorf("%s has no %q section: %w", path, cfg.Report.ModelStart, ErrNoModel)
	}
	if err != nil {
		return err
	}

	// 3. Write artifacts
	paths := NewArtifactPaths(cfg.Batch.OutputDir, ex.Participant)
	if err := WriteArtifacts(paths, ex, cfg.Batch.Workbook); err != nil {
		return err
	}
	fmt.Println("Artifacts written to", paths.Dir)

	// 4. Optionally print the tables
	if printTable {
		PrintTables(ex)
	}
	return nil
}

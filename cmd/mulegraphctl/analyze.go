package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opensource-finance/mulegraph/internal/domain"
	"github.com/opensource-finance/mulegraph/internal/engine"
	"github.com/opensource-finance/mulegraph/internal/rulesx"
)

func analyzeCmd() *cobra.Command {
	var (
		inputPath  string
		outputPath string
		rulesPath  string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the detection pipeline over a batch of transactions",
		Long: `Reads a JSON batch (a transactions array, or a full BatchRequest
envelope) from --input, runs the C1-C7 detection pipeline, and writes the
resulting report as JSON to --output (default: stdout).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			batch, err := loadBatch(inputPath)
			if err != nil {
				return fmt.Errorf("failed to load batch: %w", err)
			}

			cfg := engineConfigFromViper()

			var rulesEngine *rulesx.Engine
			if rulesPath != "" {
				rulesEngine, err = loadRulesEngine(rulesPath)
				if err != nil {
					return err
				}
			}

			eng, err := engine.New(cfg, rulesEngine)
			if err != nil {
				return fmt.Errorf("invalid engine configuration: %w", err)
			}

			start := time.Now()
			report, err := eng.Analyze(ctx, batch.Transactions)
			if err != nil {
				return fmt.Errorf("analysis failed: %w", err)
			}

			out := os.Stdout
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}

			fmt.Fprintf(os.Stderr, "analyzed %d transactions, %d rings, %d accounts flagged in %s\n",
				report.Summary.TotalTransactions,
				report.Summary.FraudRingsDetected,
				report.Summary.SuspiciousAccountsFlagged,
				time.Since(start).Round(time.Millisecond),
			)

			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "path to a JSON batch file (required)")
	cmd.Flags().StringVar(&outputPath, "output", "", "path to write the JSON report (default: stdout)")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "path to a custom CEL rules JSON file")
	_ = cmd.MarkFlagRequired("input")

	cmd.Flags().Int("fan-min-spokes", 0, "override engine.fanMinSpokes")
	cmd.Flags().Int("chain-min-length", 0, "override engine.chainMinLength")
	cmd.Flags().Int("suspicious-threshold", 0, "override engine.suspiciousThreshold")
	_ = viper.BindPFlag("engine.fanMinSpokes", cmd.Flags().Lookup("fan-min-spokes"))
	_ = viper.BindPFlag("engine.chainMinLength", cmd.Flags().Lookup("chain-min-length"))
	_ = viper.BindPFlag("engine.suspiciousThreshold", cmd.Flags().Lookup("suspicious-threshold"))

	return cmd
}

func loadBatch(path string) (*domain.BatchRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var batch domain.BatchRequest
	if err := json.Unmarshal(data, &batch); err == nil && len(batch.Transactions) > 0 {
		return &batch, nil
	}

	// Fall back to a bare transactions array.
	var txs []domain.Transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("input is neither a BatchRequest nor a transaction array: %w", err)
	}
	return &domain.BatchRequest{Transactions: txs}, nil
}

func loadRulesEngine(path string) (*rulesx.Engine, error) {
	eng, err := rulesx.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	rules, err := rulesx.LoadRulesFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules file: %w", err)
	}
	for _, r := range rules {
		if err := eng.LoadRule(r); err != nil {
			return nil, fmt.Errorf("failed to load rule %s: %w", r.ID, err)
		}
	}
	return eng, nil
}

// engineConfigFromViper starts from the Community defaults and overlays any
// engine.* keys bound via flags or the config file.
func engineConfigFromViper() domain.EngineConfig {
	cfg := domain.DefaultConfig().Engine

	if v := viper.GetInt("engine.fanMinSpokes"); v > 0 {
		cfg.FanMinSpokes = v
	}
	if v := viper.GetInt("engine.chainMinLength"); v > 0 {
		cfg.ChainMinLength = v
	}
	if v := viper.GetInt("engine.suspiciousThreshold"); v > 0 {
		cfg.SuspiciousThreshold = v
	}

	return cfg
}

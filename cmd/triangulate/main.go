// triangulate — evidence acquisition and triangulation pipeline.
//
// Classifies a research topic, fans queries out across open and paid data
// providers under a wall-clock budget, dedupes and clusters the evidence,
// screens contradictions, enriches from primary sources, and writes a gated
// evidence bundle.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/veracity-labs/triangulate/pkg/config"
	"github.com/veracity-labs/triangulate/pkg/intent"
	"github.com/veracity-labs/triangulate/pkg/pipeline"
	"github.com/veracity-labs/triangulate/pkg/quota"
)

var version = "1.0.0"

// exitCodeOK and friends mirror pipeline.Outcome. 1 is reserved for
// unexpected internal errors.
const (
	exitOK         = 0
	exitInternal   = 1
	exitDegraded   = 2
	exitNoEvidence = 3
	exitConfig     = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	exitCode := exitOK

	rootCmd := &cobra.Command{
		Use:     "triangulate",
		Short:   "Evidence acquisition and triangulation pipeline",
		Version: version,
		Long: `triangulate collects evidence for a research topic.

It classifies the topic into a research intent, routes queries to the
providers suited to that intent, and reduces the results to a deduplicated,
clustered, contradiction-screened evidence bundle with quality metrics.

Exit codes: 0 gates passed, 2 degraded, 3 no evidence, 4 configuration error.`,
	}

	// --- run command ---
	var (
		runIntent    string
		runDepth     string
		runBudget    int
		runStrict    bool
		runOut       string
		runProviders string
		runVerbose   bool
	)

	runCmd := &cobra.Command{
		Use:   "run <topic>",
		Short: "Run the pipeline for one topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(runVerbose)

			cfg, err := config.Load()
			if err != nil {
				exitCode = exitConfig
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner, err := pipeline.NewRunner(ctx, cfg)
			if err != nil {
				exitCode = exitConfig
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				runner.Close(shutdownCtx)
			}()

			req := pipeline.RunRequest{
				Topic:         args[0],
				IntentHint:    runIntent,
				Depth:         runDepth,
				BudgetSeconds: runBudget,
				Strict:        runStrict,
				OutputDir:     runOut,
			}
			if runProviders != "" {
				req.Providers = strings.Split(runProviders, ",")
			}

			res, err := runner.Run(ctx, req)
			if res != nil {
				exitCode = outcomeExit(res.Outcome)
			} else {
				exitCode = exitInternal
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "intent=%s items=%d clusters=%d fingerprint=%s\n",
				res.Intent, res.Items, res.Clusters, res.Fingerprint)
			return nil
		},
	}

	runCmd.Flags().StringVar(&runIntent, "intent", "", "Intent hint: encyclopedia, news, stats, academic, ... (skips classification)")
	runCmd.Flags().StringVarP(&runDepth, "depth", "d", "standard", "Search depth: rapid, standard, deep")
	runCmd.Flags().IntVarP(&runBudget, "budget", "b", 120, "Wall-clock budget in seconds")
	runCmd.Flags().BoolVar(&runStrict, "strict", false, "Fail the run when quality gates fail (one loosened retry first)")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "evidence", "Output directory for the bundle")
	runCmd.Flags().StringVar(&runProviders, "providers", "", "Comma-separated provider override (skips intent routing)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Enable debug logging")

	// --- classify command ---
	classifyCmd := &cobra.Command{
		Use:   "classify <topic>",
		Short: "Show the intent classification for a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := intent.Classify(args[0], "")
			out := struct {
				Primary   intent.Intent   `json:"primary"`
				Secondary []intent.Intent `json:"secondary,omitempty"`
			}{c.Primary, c.Secondary}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	// --- providers command ---
	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List providers and their credential status",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(false)
			cfg, err := config.Load()
			if err != nil {
				exitCode = exitConfig
				return err
			}
			ctx := context.Background()
			runner, err := pipeline.NewRunner(ctx, cfg)
			if err != nil {
				exitCode = exitConfig
				return err
			}
			defer runner.Close(ctx)

			names := runner.Registry().Names()
			sort.Strings(names)
			for _, name := range names {
				p, _ := runner.Registry().Get(name)
				desc := p.Descriptor()
				status := "open"
				if desc.KeyName != "" {
					if cfg.HasKey(desc.Name) {
						status = "keyed"
					} else {
						status = "missing key"
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-12s interval=%s\n",
					name, status, desc.MinInterval)
			}
			return nil
		},
	}

	// --- quota command ---
	var quotaPrune bool

	quotaCmd := &cobra.Command{
		Use:   "quota [provider...]",
		Short: "Show daily quota usage from the local ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(false)
			cfg, err := config.Load()
			if err != nil {
				exitCode = exitConfig
				return err
			}
			ledger, err := quota.Open(cfg.CacheDir + "/quota.db")
			if err != nil {
				exitCode = exitConfig
				return err
			}
			defer ledger.Close()

			ctx := context.Background()
			if quotaPrune {
				if err := ledger.Prune(ctx, 30); err != nil {
					return err
				}
			}
			for _, name := range args {
				used, err := ledger.Used(ctx, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %d calls today\n", name, used)
			}
			return nil
		},
	}
	quotaCmd.Flags().BoolVar(&quotaPrune, "prune", false, "Drop ledger rows older than 30 days")

	rootCmd.AddCommand(runCmd, classifyCmd, providersCmd, quotaCmd)

	if err := rootCmd.Execute(); err != nil {
		if exitCode == exitOK {
			exitCode = exitInternal
		}
		return exitCode
	}
	return exitCode
}

func outcomeExit(o pipeline.Outcome) int {
	switch o {
	case pipeline.OutcomeOK:
		return exitOK
	case pipeline.OutcomeDegraded:
		return exitDegraded
	case pipeline.OutcomeNoEvidence:
		return exitNoEvidence
	case pipeline.OutcomeConfigErr:
		return exitConfig
	default:
		return exitInternal
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

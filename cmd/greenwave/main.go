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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/stat"

	"greenwave/internal/config"
	"greenwave/internal/models"
	"greenwave/internal/results"
	"greenwave/internal/runner"
)

var rootCmd = &cobra.Command{
	Use:   "greenwave",
	Short: "Traffic signal control simulator",
	Long: `Greenwave simulates vehicle traffic across a network of signalized
intersections and benchmarks control strategies against each other: a
deterministic fixed-time schedule and independent learning agents, one per
intersection. Repeated runs record queue lengths, wait times and throughput
in an identical shape for every controller, so the strategies can be
compared statistically afterwards.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// Setup context with manual signal handling
	ctx, cancel := context.WithCancel(context.Background())

	// Listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	defer func() {
		signal.Stop(sigChan)
		cancel()
	}()

	go func() {
		sig := <-sigChan
		slog.Info("interrupt received, finishing with partial results...", "signal", sig)
		cancel()
	}()

	cobra.OnInitialize(initConfig)
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("GREENWAVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(scenarioCmd())
}

func runCmd() *cobra.Command {
	var jobPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a job of repeated simulation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Any configuration problem must surface here, before a single
			// tick is simulated.
			cfg, err := config.LoadJobConfig(jobPath)
			if err != nil {
				return err
			}
			applyOverrides(&cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			setupLogging(cfg)

			result, err := runner.RunFromConfig(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}

			printJobResult(result)

			if result.FailedRuns > 0 || result.Cancelled {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jobPath, "job", "job.yaml", "path to the job config file")
	cmd.Flags().String("controller", "", `controller type, "fixed" or "marl" (overrides the job config)`)
	cmd.Flags().Int("runs", 0, "number of repeated runs (overrides the job config)")
	cmd.Flags().Int64("ticks", 0, "simulated ticks per run (overrides the job config)")
	cmd.Flags().Uint64("seed", 0, "base arrival seed (overrides the job config)")
	cmd.Flags().String("results-dir", "", "results directory (overrides the job config)")
	_ = viper.BindPFlag("controller", cmd.Flags().Lookup("controller"))
	_ = viper.BindPFlag("runs", cmd.Flags().Lookup("runs"))
	_ = viper.BindPFlag("ticks", cmd.Flags().Lookup("ticks"))
	_ = viper.BindPFlag("seed", cmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("results-dir", cmd.Flags().Lookup("results-dir"))
	return cmd
}

// applyOverrides layers flag and GREENWAVE_* environment values over the job
// file; zero values mean "keep the file's setting".
func applyOverrides(cfg *config.JobConfig) {
	if v := viper.GetString("controller"); v != "" {
		cfg.Controller = v
	}
	if v := viper.GetInt("runs"); v > 0 {
		cfg.Runs = v
	}
	if v := viper.GetInt64("ticks"); v > 0 {
		cfg.Ticks = v
	}
	if v := viper.GetUint64("seed"); v > 0 {
		cfg.Seed = v
	}
	if v := viper.GetString("results-dir"); v != "" {
		cfg.ResultsDir = v
	}
}

func setupLogging(cfg config.JobConfig) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()})
	slog.SetDefault(slog.New(handler))
}

func printJobResult(result *models.JobResult) {
	fmt.Printf("\nJob: %s\n", result.JobName)
	fmt.Printf("Controller: %s\n", result.Controller)
	fmt.Printf("Total runs: %d\n", result.TotalRuns)
	fmt.Printf("Completed: %d\n", result.CompletedRuns)
	fmt.Printf("Failed: %d\n", result.FailedRuns)
	if result.SkippedRuns > 0 {
		fmt.Printf("Skipped: %d\n", result.SkippedRuns)
	}
	fmt.Printf("Mean vehicles passed: %.2f\n", result.MeanVehicles)
	fmt.Printf("Mean wait: %.2f ticks/vehicle\n", result.MeanWait)
	fmt.Printf("Duration: %.2fs\n", result.TotalDurationSec)
}

func reportCmd() *cobra.Command {
	var resultsDir, job string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize recorded runs per controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := results.Open(results.DBPath(resultsDir))
			if err != nil {
				return err
			}
			defer store.Close()

			summaries, err := store.Summaries(cmd.Context(), job)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				return fmt.Errorf("no recorded runs under %s", resultsDir)
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}

			printControllerTable(summaries)
			return nil
		},
	}
	cmd.Flags().StringVar(&resultsDir, "results-dir", "results", "results directory holding the store")
	cmd.Flags().StringVar(&job, "job", "", "only include runs from this job")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw run summaries as JSON")
	return cmd
}

// printControllerTable renders descriptive statistics per controller. The
// inferential comparison happens offline; this is the at-a-glance view.
func printControllerTable(summaries []models.RunSummary) {
	byController := lo.GroupBy(summaries, func(s models.RunSummary) models.ControllerKind {
		return s.Controller
	})
	kinds := lo.Keys(byController)
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Controller", "Runs", "Mean Wait", "Std Wait", "Median Wait", "Mean Passed", "Max Queue", "Faults"})
	for _, kind := range kinds {
		runs := byController[kind]
		waits := make([]float64, 0, len(runs))
		passed := make([]float64, 0, len(runs))
		maxQueue := 0
		var faults int64
		for _, s := range runs {
			if s.Error != nil {
				continue
			}
			waits = append(waits, s.MeanWait)
			passed = append(passed, float64(s.VehiclesPassed))
			if s.MaxQueue > maxQueue {
				maxQueue = s.MaxQueue
			}
			faults += s.LearningFaults
		}
		if len(waits) == 0 {
			continue
		}
		sort.Float64s(waits)
		stddev := 0.0
		if len(waits) > 1 {
			stddev = stat.StdDev(waits, nil)
		}
		tw.AppendRow(table.Row{
			string(kind),
			len(runs),
			fmt.Sprintf("%.2f", stat.Mean(waits, nil)),
			fmt.Sprintf("%.2f", stddev),
			fmt.Sprintf("%.2f", stat.Quantile(0.5, stat.Empirical, waits, nil)),
			fmt.Sprintf("%.1f", stat.Mean(passed, nil)),
			maxQueue,
			faults,
		})
	}
	tw.Render()
}

func scenarioCmd() *cobra.Command {
	sc := &cobra.Command{Use: "scenario", Short: "Inspect scenario files"}
	sc.AddCommand(scenarioValidateCmd())
	return sc
}

func scenarioValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario.toml>",
		Short: "Validate a scenario file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := config.LoadScenarioFile(args[0])
			if err != nil {
				return err
			}
			var totalRate float64
			for _, e := range sc.Entries {
				totalRate += e.Rate
			}
			fmt.Printf("scenario %s OK: %d intersections, %d links, %d entries, %.2f vehicles/tick demand\n",
				sc.Name, len(sc.Intersections), len(sc.Links), len(sc.Entries), totalRate)
			return nil
		},
	}
}

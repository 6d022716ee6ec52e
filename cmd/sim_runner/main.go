package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/miretskiy/compactsim/simulator"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	configFile string
	duration   time.Duration
	sets       []string
	verbose    bool
	plot       bool
	plotHeight int
	output     string
}

// Result is the JSON report of one run.
type Result struct {
	Config    simulator.Config         `json:"config"`
	SimTimeMs int64                    `json:"simTimeMs"`
	WallTime  float64                  `json:"wallTimeSeconds"`
	Stores    []simulator.StoreMetrics `json:"stores"`
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "sim_runner",
		Short: "Run the compaction simulator headless and report amplification per store",
		Long: `Runs one simulation for a fixed wall-clock duration, then prints a
per-store summary. Configuration comes from --config (JSON or YAML) with
--set name=value edits applied on top.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return run(ctx, opts, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", "", "path to a JSON or YAML configuration file")
	f.DurationVar(&opts.duration, "duration", 10*time.Second, "wall-clock duration of the run")
	f.StringArrayVar(&opts.sets, "set", nil, "override a config field, as name=value (repeatable)")
	f.BoolVar(&opts.verbose, "verbose", false, "enable debug logging")
	f.BoolVar(&opts.plot, "plot", false, "plot write amplification over simulated time")
	f.IntVar(&opts.plotHeight, "plot-height", 10, "height of the plot in lines")
	f.StringVar(&opts.output, "output", "", "write the JSON result to this file, or - for stdout")
	return cmd
}

// parseSets turns name=value flags into a batch of config edits.
func parseSets(sets []string) (map[string]string, error) {
	edits := make(map[string]string, len(sets))
	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q: expected name=value", s)
		}
		edits[name] = value
	}
	return edits, nil
}

func loadConfig(opts options) (simulator.Config, error) {
	cfg := simulator.DefaultConfig()
	if opts.configFile != "" {
		var err error
		if cfg, err = simulator.LoadConfig(opts.configFile); err != nil {
			return cfg, err
		}
	}
	edits, err := parseSets(opts.sets)
	if err != nil {
		return cfg, err
	}
	if len(edits) == 0 {
		return cfg, nil
	}
	return simulator.ApplyEdits(cfg, edits)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func run(ctx context.Context, opts options, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	recorder := &simulator.SampleRecorder{}
	sim, err := simulator.NewSimulator(cfg, simulator.WithLogger(logger), simulator.WithSink(recorder))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()
	start := time.Now()
	if err := sim.Run(ctx); err != nil {
		return err
	}
	elapsed := time.Since(start)

	result := Result{
		Config:    cfg,
		SimTimeMs: sim.SimTime().Milliseconds(),
		WallTime:  elapsed.Seconds(),
		Stores:    sim.Metrics(),
	}

	if opts.output != "-" {
		fmt.Fprintf(out, "Simulated %.2f days in %v\n\n", float64(result.SimTimeMs)/float64(24*time.Hour/time.Millisecond), elapsed.Round(time.Millisecond))
		writeTable(out, result.Stores)
		if opts.plot {
			fmt.Fprintln(out)
			writePlot(out, recorder.Samples(), opts.plotHeight)
		}
	}
	if opts.output == "" {
		return nil
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if opts.output == "-" {
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	return os.WriteFile(opts.output, data, 0o644)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

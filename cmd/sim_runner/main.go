package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/miretskiy/manetsim/experiment"
	"github.com/miretskiy/manetsim/logging"
)

var (
	outputFile  string
	verbose     bool
	fullMetrics bool
	until       int64
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sim_runner",
	Short: "Headless LMS simulation runner",
	Long: `sim_runner runs LMS experiments on a simulated mobile ad hoc network
and prints the results as JSON.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			return logging.SetLevel("debug")
		}
		return nil
	},
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run <experiment.yaml|experiment.json>",
	Short: "Run one experiment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := experiment.Load(args[0])
		if err != nil {
			return err
		}
		log := logging.Component("sim_runner")

		e, err := experiment.New(cfg, logging.Component("kernel"))
		if err != nil {
			return err
		}
		if verbose {
			e.Simulator().LogEvent = func(msg string) {
				fmt.Fprintf(os.Stderr, "[SIM] %s\n", msg)
			}
		}

		log.Info().Str("title", cfg.Title).Int("nodes", cfg.Workload.InitialNodes).Msg("starting simulation")
		start := time.Now()
		if until > 0 {
			err = e.Simulator().RunUntil(until)
		} else {
			err = e.Simulator().Run()
		}
		if err != nil {
			return err
		}
		res := e.Result()
		log.Info().Dur("elapsed", time.Since(start)).Int64("time", res.Time).Msg("simulation completed")

		if !fullMetrics {
			res.Metrics = nil
		}
		return writeJSON(map[string]interface{}{
			"config":   cfg,
			"realTime": time.Since(start).Seconds(),
			"result":   res,
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep <experiment.yaml|experiment.json>",
	Short: "Rerun an experiment over the values of its sweep section",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := experiment.Load(args[0])
		if err != nil {
			return err
		}
		if cfg.Sweep == nil {
			return fmt.Errorf("%s has no sweep section", args[0])
		}
		rows, err := experiment.RunSweep(cfg, *cfg.Sweep, logging.Component("sweep"))
		if err != nil {
			return err
		}
		return writeJSON(map[string]interface{}{
			"title": cfg.Title,
			"param": cfg.Sweep.Param,
			"runs":  rows,
		})
	},
}

func writeJSON(v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}
	if outputFile == "" {
		fmt.Println(string(output))
		return nil
	}
	if err := os.WriteFile(outputFile, output, 0644); err != nil {
		return err
	}
	logging.RootLogger.Info().Str("path", outputFile).Msg("results written")
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "write JSON results to this file instead of stdout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every kernel event")
	runCmd.Flags().BoolVar(&fullMetrics, "metrics", false, "include per-request histories in the output")
	runCmd.Flags().Int64Var(&until, "until", 0, "stop at this simulated time instead of draining the queue")

	rootCmd.AddCommand(runCmd, sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/moven0831/proofqueue/services/client"
	"github.com/moven0831/proofqueue/services/proofqueue/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the nine-step benchmark workflow once and print the timing table",
	RunE:  runBenchmark,
}

func init() {
	runCmd.Flags().String("documents-path", "", "path to the document set (required)")
	runCmd.Flags().String("input-path", "", "optional path to the proof input file")
	runCmd.Flags().String("prover-bin", "", "path to the prover binary; empty uses the built-in simulator")
	runCmd.Flags().Duration("sim-latency", 0, "per-operation delay for the simulator")
	_ = runCmd.MarkFlagRequired("documents-path")

	bindFlag("documents_path", runCmd.Flags(), "documents-path")
	bindFlag("input_path", runCmd.Flags(), "input-path")
	bindFlag("prover_bin", runCmd.Flags(), "prover-bin")
	bindFlag("sim_latency", runCmd.Flags(), "sim-latency")
}

func runBenchmark(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := buildLogger(cfg.LogLevel, "proofqueue")

	facade := buildFacade(cfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	documentsPath := viper.GetString("documents_path")
	inputPath := viper.GetString("input_path")

	results, err := facade.BenchmarkWorkflow(ctx, documentsPath, inputPath)

	if len(results) > 0 {
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STEP\tSTATUS\tDURATION\tTOTAL(ms)")
		var grandTotal int64
		for _, step := range results {
			status := "ok"
			if !step.Result.Success {
				status = "failed"
			}
			var totalMs int64
			if step.Result.Timings != nil {
				totalMs = step.Result.Timings.TotalMs
			}
			var durMs int64
			if task, err := facade.Store().Get(step.TaskID); err == nil {
				durMs = task.Duration().Milliseconds()
			}
			grandTotal += durMs
			fmt.Fprintf(tw, "%s\t%s\t%dms\t%d\n", step.Name, status, durMs, totalMs)
		}
		fmt.Fprintf(tw, "total\t\t%dms\t\n", grandTotal)
		tw.Flush()
	}

	if err != nil {
		var wfErr *client.WorkflowFailedError
		if errors.As(err, &wfErr) {
			return fmt.Errorf("benchmark aborted at step %q: %s", wfErr.Step, wfErr.Cause)
		}
		return fmt.Errorf("benchmark: %w", err)
	}

	stopCtx, stopCancel := context.WithCancel(context.Background())
	defer stopCancel()
	return facade.StopService(stopCtx)
}

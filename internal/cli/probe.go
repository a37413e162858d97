package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/resilience/classify"
	"github.com/vietddude/resilience/health"
	"github.com/vietddude/resilience/retry"
)

var (
	probeURL      string
	probePreset   string
	probeCount    int
	probeInterval time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Send HTTP requests through the retry executor",
	Long:  `Probe repeatedly fetches a URL through the retry executor using a named policy preset, serving /health, /circuits and /metrics while it runs. Useful for watching classification, backoff, and circuit behavior against a real endpoint.`,
	Run:   runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeURL, "url", "", "URL to probe (required)")
	probeCmd.Flags().StringVar(&probePreset, "preset", "external-api", "policy preset name")
	probeCmd.Flags().IntVar(&probeCount, "count", 10, "number of probes to send")
	probeCmd.Flags().DurationVar(&probeInterval, "interval", time.Second, "pause between probes")
	_ = probeCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	policies, err := cfg.PolicySet()
	if err != nil {
		slog.Error("Invalid policy configuration", "error", err)
		os.Exit(1)
	}
	policy, ok := policies[probePreset]
	if !ok {
		slog.Error("Unknown policy preset", "preset", probePreset)
		os.Exit(1)
	}

	var budget *retry.Budget
	if cfg.Budget.MaxInflightRetries > 0 {
		budget = retry.NewBudget(cfg.Budget.MaxInflightRetries)
	}

	exec := retry.New(
		retry.WithClassifier(classify.HTTP),
		retry.WithBudget(budget),
	)

	healthSrv := health.NewServer(exec.Registry(), cfg.Server.Port)
	go func() {
		if err := healthSrv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("Health server failed", "error", err)
		}
	}()
	slog.Info("Health server started", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received signal, stopping...", "signal", sig)
		cancel()
	}()

	client := &http.Client{}
	key := "probe:" + probeURL

	for i := 0; i < probeCount; i++ {
		if ctx.Err() != nil {
			break
		}

		res := retry.Do(ctx, exec, key, policy, func(ctx context.Context) (int, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
			if err != nil {
				return 0, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return 0, err
			}
			defer resp.Body.Close()
			if err := classify.CheckResponse(resp); err != nil {
				return resp.StatusCode, err
			}
			return resp.StatusCode, nil
		})

		if res.Success {
			slog.Info("Probe succeeded",
				"probe", i+1, "status", res.Value,
				"attempts", res.Attempts, "elapsed", res.Elapsed)
		} else {
			slog.Warn("Probe failed",
				"probe", i+1, "kind", res.Err.Kind,
				"attempts", res.Attempts,
				"circuit_open", res.CircuitOpen,
				"elapsed", res.Elapsed)
		}

		select {
		case <-ctx.Done():
		case <-time.After(probeInterval):
		}
	}

	printCircuits(exec)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Stop(shutdownCtx); err != nil {
		slog.Error("Error stopping health server", "error", err)
	}
}

func printCircuits(exec *retry.Executor) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "KEY\tSTATUS\tFAILURES\tLAST FAILURE")

	for _, snap := range exec.Registry().SnapshotAll() {
		last := "-"
		if snap.LastFailureAt != nil {
			last = snap.LastFailureAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\n",
			snap.Key, snap.Status, snap.ConsecutiveFailures, snap.Threshold, last)
	}

	_ = w.Flush()
}

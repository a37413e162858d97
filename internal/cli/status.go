package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/resilience/breaker"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show circuit state of a running instance",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8080", "address of the health server")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	loadConfig()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(statusAddr + "/circuits")
	if err != nil {
		slog.Error("Failed to reach health server", "addr", statusAddr, "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var snaps []breaker.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snaps); err != nil {
		slog.Error("Failed to decode circuit state", "error", err)
		os.Exit(1)
	}

	if len(snaps) == 0 {
		fmt.Println("no circuits registered")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "KEY\tSTATUS\tFAILURES\tOPENED")

	for _, snap := range snaps {
		opened := "-"
		if snap.OpenedAt != nil {
			opened = snap.OpenedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\n",
			snap.Key, snap.Status, snap.ConsecutiveFailures, snap.Threshold, opened)
	}

	_ = w.Flush()
}

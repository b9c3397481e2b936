package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaypull/fetchd/internal/dashboard"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently finished jobs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of rows to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	h, err := dashboard.OpenHistory()
	if err != nil {
		return err
	}
	defer h.Close()

	entries, err := h.Recent(historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no finished jobs recorded yet")
		return nil
	}

	w := os.Stdout
	fmt.Fprintf(w, "%-5s %-8s %-8s %-9s %s\n", "job", "state", "redirs", "bytes", "uri / detail")
	for _, e := range entries {
		detail := e.URI
		if e.Detail != "" {
			detail = e.Detail
		}
		if e.SuggestedFilename != "" {
			detail = fmt.Sprintf("%s (server suggested %q)", detail, e.SuggestedFilename)
		}
		fmt.Fprintf(w, "%-5d %-8s %-8d %-9d %s\n", e.JobID, e.State, e.RedirectCount, e.Downloaded, detail)
	}
	return nil
}

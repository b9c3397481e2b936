package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/relaypull/fetchd/internal/bandwidth"
	"github.com/relaypull/fetchd/internal/clock"
	"github.com/relaypull/fetchd/internal/config"
	"github.com/relaypull/fetchd/internal/dashboard"
	"github.com/relaypull/fetchd/internal/orchestrator"
	"github.com/relaypull/fetchd/internal/sockfactory"
	"github.com/relaypull/fetchd/internal/tasklist"
	"github.com/relaypull/fetchd/internal/types"
)

// Version is set via ldflags during build.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "fetchd",
	Short:   "A concurrent, bandwidth-limited HTTP file downloader",
	Version: Version,
	Args:    cobra.NoArgs,
	RunE:    runRoot,
}

var (
	flagConcurrency int
	flagSpeedLimit  string
	flagOutput      string
	flagTaskFile    string
)

func init() {
	rootCmd.Flags().IntVarP(&flagConcurrency, "concurrency", "n", 1, "number of concurrent downloads")
	rootCmd.Flags().StringVarP(&flagSpeedLimit, "limit", "l", "", "speed limit, e.g. 500k, 2M (unset = unthrottled; 0 is rejected)")
	rootCmd.Flags().StringVarP(&flagOutput, "output", "o", ".", "output directory tasks are written into")
	rootCmd.Flags().StringVarP(&flagTaskFile, "file", "f", "", "task file: one '<uri> <filename>' per line")
	rootCmd.MarkFlagRequired("file")
	rootCmd.SetVersionTemplate("fetchd version {{.Version}}\n")
}

// Execute runs the root command and maps any argument error to exit
// code 1; a clean run exits 0.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fetchd:", err)
		os.Exit(1)
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	if err := config.ValidateConcurrency(flagConcurrency); err != nil {
		return err
	}
	var speedLimit int64
	if flagSpeedLimit != "" {
		limit, err := config.ParseSpeedLimit(flagSpeedLimit)
		if err != nil {
			return err
		}
		speedLimit = limit
	}

	taskFile, err := os.Open(flagTaskFile)
	if err != nil {
		return fmt.Errorf("task file: %w", err)
	}
	defer taskFile.Close()

	lock, locked, err := AcquireLock(flagOutput)
	if err != nil {
		return err
	}
	if !locked {
		return fmt.Errorf("another fetchd instance already owns output path %q", flagOutput)
	}
	defer lock.Release()

	if err := os.MkdirAll(config.CleanOutputPath(flagOutput), 0o755); err != nil {
		return fmt.Errorf("output path: %w", err)
	}

	history, err := dashboard.OpenHistory()
	if err != nil {
		return fmt.Errorf("history log: %w", err)
	}
	defer history.Close()

	runtime := &types.RuntimeConfig{
		Concurrency: flagConcurrency,
		SpeedLimit:  speedLimit,
	}

	var ctrl *bandwidth.Controller
	if speedLimit > 0 {
		ctrl = bandwidth.NewController(speedLimit, clock.System{})
		defer ctrl.Close()
	}
	factory := sockfactory.New(ctrl, runtime.GetReadBufferSize())
	list := tasklist.Open(taskFile, config.CleanOutputPath(flagOutput))

	var o *orchestrator.Orchestrator
	recorder := dashboard.NewRecorder(history, traceOf(&o), uriOf(&o), filenameOf(&o), redirectsOf(&o))
	sniffer := dashboard.NewSniffer(filenameOf(&o))

	var sink dashboard.Sink
	var live *dashboard.LiveSink
	if isatty.IsTerminal(os.Stdout.Fd()) {
		live = dashboard.NewLiveSink(recorder, sniffer)
		sink = live
	} else {
		sink = dashboard.NewTableSink(func(s string) { fmt.Print(s) }, recorder, sniffer)
	}

	o = orchestrator.New(factory, list, sink, runtime)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if live != nil {
		go func() {
			o.Start(ctx)
			for o.Running() > 0 {
				time.Sleep(50 * time.Millisecond)
				if ctx.Err() != nil {
					break
				}
			}
			live.Quit()
		}()
		return live.Run()
	}

	o.Start(ctx)
	for o.Running() > 0 {
		if ctx.Err() != nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}

// traceOf, uriOf, filenameOf, and redirectsOf adapt an
// *orchestrator.Orchestrator — assigned after the dashboard sinks
// that need it are constructed, since the orchestrator itself takes
// the sink as a constructor argument — into the lookup callbacks
// dashboard.Recorder and dashboard.Sniffer expect. The indirection
// through **orchestrator.Orchestrator is safe because these callbacks
// are never invoked until the orchestrator dispatches its own first
// Update, by which point o is assigned.
func traceOf(o **orchestrator.Orchestrator) func(int) string {
	return func(id int) string { return (*o).TraceID(id) }
}

func uriOf(o **orchestrator.Orchestrator) func(int) string {
	return func(id int) string { return (*o).URI(id) }
}

func filenameOf(o **orchestrator.Orchestrator) func(int) string {
	return func(id int) string { return (*o).Filename(id) }
}

func redirectsOf(o **orchestrator.Orchestrator) func(int) int {
	return func(id int) int { return (*o).JobRedirectCount(id) }
}

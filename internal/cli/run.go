package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/mascril/internal/catalog"
	"github.com/banshee-data/mascril/internal/config"
	"github.com/banshee-data/mascril/internal/control"
	"github.com/banshee-data/mascril/internal/instrument"
	"github.com/banshee-data/mascril/internal/measure"
	"github.com/banshee-data/mascril/internal/measure/param"
	"github.com/banshee-data/mascril/internal/scripts"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config   string
	Sim      bool
	Database string
	Listen   string

	// Now names the data file. If nil, defaults to time.Now.
	Now func() time.Time
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a measurement script",
		Long: `Run the measurement script named in a configuration file.

The data file is written to <data_dir>/<timestamp>_<comment>.txt. Ctrl-C
requests a stop: the current step finishes, then every source is driven to
its safe state. Further interrupts are ignored until teardown completes.

Example:
  mascril run --config run.yaml
  mascril run --config run.yaml --sim --db runs.db --listen 127.0.0.1:8090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMeasurement(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "run configuration file (.yaml, .yml or .json)")
	cmd.Flags().BoolVar(&opts.Sim, "sim", false, "use the script's simulated instruments")
	cmd.Flags().StringVar(&opts.Database, "db", "", "run catalogue database (overrides the config)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "debug control address (overrides the config)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

// runSummary is the JSON form of a finished run.
type runSummary struct {
	ID         string         `json:"run_id"`
	Script     string         `json:"script"`
	State      measure.State  `json:"state"`
	DataPath   string         `json:"data_path"`
	Steps      int            `json:"steps"`
	Total      int            `json:"total_steps"`
	Rows       int            `json:"rows_written"`
	StopReason string         `json:"stop_reason,omitempty"`
	Error      string         `json:"error,omitempty"`
	Alarms     map[string]int `json:"alarms,omitempty"`
	Teardown   []string       `json:"teardown_errors,omitempty"`
}

func runMeasurement(cmd *cobra.Command, opts *RunOptions) error {
	cfg, err := config.LoadRunConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}

	script, err := scripts.Lookup(cfg.Script)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find script", err)
	}
	provider, err := buildProvider(script, cfg, opts.Sim)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up instruments", err)
	}
	severities, err := cfg.AbortSeverities()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create data directory", err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	dataPath := cfg.DataFile(now())

	flag := &measure.CancelFlag{}
	runnerOpts := []measure.Option{
		measure.WithProvider(provider),
		measure.WithAbortOn(severities...),
	}
	if cfg.Bookkeeping {
		runnerOpts = append(runnerOpts, measure.WithBookkeeping())
	}

	var db *catalog.DB
	if cfg.Database != "" {
		slog.Debug("opening run catalogue", "path", cfg.Database)
		db, err = catalog.Open(cfg.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open run catalogue", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				slog.Error("error closing run catalogue", "error", closeErr)
			}
		}()
		runnerOpts = append(runnerOpts, measure.WithJournal(db))
	}
	runner := measure.NewRunner(script, flag, runnerOpts...)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if cfg.Listen != "" {
		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to listen", err)
		}
		mux := http.NewServeMux()
		control.AttachAdminRoutes(mux, runner, flag)
		if db != nil {
			control.AttachCatalogRoutes(mux, db)
		}
		served := make(chan struct{})
		go func() {
			defer close(served)
			if err := control.Serve(ctx, ln, mux); err != nil {
				slog.Error("control server", "error", err)
			}
		}()
		defer func() {
			cancel()
			<-served
		}()
		slog.Info("control surface listening", "url", "http://"+ln.Addr().String()+"/debug/")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go watchSignals(ctx, sigChan, flag)

	res, runErr := runner.Run(ctx, overrides(script, cfg), dataPath)
	if res == nil {
		return WrapExitError(ExitFailure, "failed to start run", runErr)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := out.Success(summarize(res), func(w io.Writer) error {
		return writeRunText(w, res)
	}); err != nil {
		return err
	}
	if runErr != nil {
		var cfgErr *param.ConfigurationError
		if errors.As(runErr, &cfgErr) {
			return WrapExitError(ExitCommandError, "invalid parameters", runErr)
		}
		return WrapExitError(ExitFailure, "run failed", runErr)
	}
	return nil
}

// watchSignals turns the first interrupt into a stop request. Later
// interrupts are only acknowledged so teardown always completes.
func watchSignals(ctx context.Context, sigChan <-chan os.Signal, flag *measure.CancelFlag) {
	for {
		select {
		case sig := <-sigChan:
			if flag.Requested() {
				slog.Warn("already stopping, waiting for teardown", "signal", sig)
				continue
			}
			slog.Info("received signal, stopping after the current step", "signal", sig)
			flag.Request()
		case <-ctx.Done():
			return
		}
	}
}

// buildProvider picks where the script's instruments come from. With sim
// every instrument is simulated; otherwise configured instruments reach
// hardware and only those configured as "sim" use the simulator.
func buildProvider(script measure.Script, cfg *config.RunConfig, sim bool) (instrument.Provider, error) {
	simulated, hasSim := script.(scripts.Simulated)
	if sim {
		if !hasSim {
			return nil, fmt.Errorf("script %s has no simulator", script.Name())
		}
		return simulated.Simulator(), nil
	}
	var fallback instrument.Provider
	if hasSim {
		simProvider := simulated.Simulator()
		fallback = instrument.ProviderFunc(func(ctx context.Context, name string) (any, error) {
			if inst, ok := cfg.Instruments[name]; !ok || inst.Resource != "sim" {
				return nil, fmt.Errorf("no instrument configured for %q", name)
			}
			return simProvider.Open(ctx, name)
		})
	}
	return instrument.NewConfigProvider(cfg.Instruments, fallback), nil
}

// overrides returns the configured parameters plus the file-level comment
// and data directory for scripts that declare them.
func overrides(script measure.Script, cfg *config.RunConfig) map[string]any {
	out := maps.Clone(cfg.Params)
	if out == nil {
		out = make(map[string]any)
	}
	schema := script.Schema()
	if _, ok := schema.Lookup("comment"); ok && cfg.Comment != "" {
		if _, set := out["comment"]; !set {
			out["comment"] = cfg.Comment
		}
	}
	if _, ok := schema.Lookup("data_dir"); ok && cfg.DataDir != "" {
		if _, set := out["data_dir"]; !set {
			out["data_dir"] = cfg.DataDir
		}
	}
	return out
}

func summarize(res *measure.Result) runSummary {
	s := runSummary{
		ID:         res.ID.String(),
		Script:     res.Script,
		State:      res.State,
		DataPath:   res.DataPath,
		Steps:      res.Steps,
		Total:      res.Total,
		Rows:       res.Rows,
		StopReason: res.StopReason,
		Alarms:     res.Alarms,
	}
	if res.Err != nil {
		s.Error = res.Err.Error()
	}
	for _, err := range res.TeardownErrs {
		s.Teardown = append(s.Teardown, err.Error())
	}
	return s
}

func writeRunText(w io.Writer, res *measure.Result) error {
	fmt.Fprintf(w, "Run %s %s: %d/%d steps, %d rows\n", res.ID, res.State, res.Steps, res.Total, res.Rows)
	if res.StopReason != "" {
		fmt.Fprintf(w, "Stopped: %s\n", res.StopReason)
	}
	if res.Rows > 0 {
		fmt.Fprintf(w, "Data: %s\n", res.DataPath)
	}
	for _, name := range slices.Sorted(maps.Keys(res.Alarms)) {
		fmt.Fprintf(w, "Alarm %s triggered on %d steps\n", name, res.Alarms[name])
	}
	for _, err := range res.TeardownErrs {
		fmt.Fprintf(w, "Teardown: %v\n", err)
	}
	if res.Err != nil {
		fmt.Fprintf(w, "Error: %v\n", res.Err)
	}
	return nil
}

// Package control exposes a running measurement on the tsweb debug page:
// a JSON status snapshot, a stop button and the run catalogue.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/mascril/internal/catalog"
	"github.com/banshee-data/mascril/internal/measure"
	"github.com/banshee-data/mascril/internal/monitoring"
)

var logf = monitoring.Component("control")

// StatusSource reports the state of a run.
type StatusSource interface {
	Status() measure.Status
}

// RunLister lists catalogued runs.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]catalog.Run, error)
}

// AttachAdminRoutes registers the status and stop routes under /debug/.
func AttachAdminRoutes(mux *http.ServeMux, runner StatusSource, flag *measure.CancelFlag) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("status", "measurement status (JSON)", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, runner.Status())
	})

	debug.HandleSilentFunc("stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if flag == nil {
			http.Error(w, "Run cannot be stopped", http.StatusServiceUnavailable)
			return
		}
		flag.Request()
		st := runner.Status()
		logf("stop requested for %s run %s", st.Script, st.ID)
		io.WriteString(w, fmt.Sprintf("Stop requested at step %d/%d\n", st.Step, st.Total))
	})
}

// AttachCatalogRoutes registers the runs route under /debug/.
func AttachCatalogRoutes(mux *http.ServeMux, runs RunLister) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("runs", "catalogued runs (JSON)", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		list, err := runs.ListRuns(r.Context(), limit)
		if err != nil {
			http.Error(w, "Failed to list runs", http.StatusInternalServerError)
			logf("list runs: %v", err)
			return
		}
		if list == nil {
			list = []catalog.Run{}
		}
		writeJSON(w, list)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logf("encode response: %v", err)
	}
}

// Serve runs an HTTP server for handler on ln until ctx is done, then shuts
// it down gracefully.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

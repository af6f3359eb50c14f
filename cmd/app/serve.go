package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/maloquacious/stockroom/internal/logger"
	"github.com/maloquacious/stockroom/internal/store"
	"github.com/maloquacious/stockroom/internal/store/sqlite"
)

type serveOptions struct {
	port       int
	adminPort  int
	shutdownTO time.Duration
	exitAfter  time.Duration
	strictInit bool
}

func newServeCmd(g *globalFlags, stderr io.Writer) *cobra.Command {
	var opts serveOptions

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Initialize the store and start the stockroom server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), store.ResolveDBPath(g.dbPath), opts, g.logger(stderr))
		},
	}
	serveCmd.Flags().IntVar(&opts.port, "port", envInt("STOCKROOM_PORT", 8080), "public HTTP port")
	serveCmd.Flags().IntVar(&opts.adminPort, "admin-port", envInt("STOCKROOM_ADMIN_PORT", 8383), "admin HTTP port (JSON, loopback only)")
	serveCmd.Flags().DurationVar(&opts.shutdownTO, "shutdown-timeout", 15*time.Second, "graceful shutdown timeout")
	serveCmd.Flags().DurationVar(&opts.exitAfter, "exit-after", 0, "optional runtime; if set, server exits after this duration (testing)")
	serveCmd.Flags().BoolVar(&opts.strictInit, "strict-init", false, "exit when database initialization fails instead of running without a schema")

	return serveCmd
}

// readiness tracks the outcome of the startup initialization.
type readiness struct {
	mu     sync.RWMutex
	dbPath string
	done   bool
	store  *sqlite.SQLiteStore
	err    error
}

func (r *readiness) set(res sqlite.InitResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	r.store = res.Store
	r.err = res.Err
}

// get returns the initialized store, or nil with the phase initialization
// is in and its error, if any.
func (r *readiness) get() (*sqlite.SQLiteStore, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch {
	case !r.done:
		return nil, "pending", nil
	case r.err != nil:
		return nil, "failed", r.err
	}
	return r.store, "initialized", nil
}

func (r *readiness) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store == nil {
		return nil
	}
	err := r.store.Close()
	r.store = nil
	return err
}

// runServe starts both the public and admin servers while the store
// initializes in the background, then waits for shutdown.
func runServe(ctx context.Context, dbPath string, opts serveOptions, log logger.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	rd := &readiness{dbPath: dbPath}
	initCh := sqlite.InitAsync(ctx, dbPath, log)

	publicListener, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.port))
	if err != nil {
		return fmt.Errorf("public listener bind failed: %w", err)
	}
	// Bind admin to 127.0.0.1 only (loopback enforcement)
	adminListener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", opts.adminPort))
	if err != nil {
		publicListener.Close()
		return fmt.Errorf("admin listener bind failed (loopback only): %w", err)
	}

	shutdownCh := make(chan struct{})
	var shutdownOnce sync.Once
	requestShutdown := func() { shutdownOnce.Do(func() { close(shutdownCh) }) }

	publicSrv := &http.Server{
		Handler:           newPublicRouter(rd),
		ReadHeaderTimeout: 5 * time.Second,
	}
	adminSrv := &http.Server{
		Handler:           newAdminRouter(rd, requestShutdown),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		log.Info("public server listening on %s", publicListener.Addr())
		if err := publicSrv.Serve(publicListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("public server error: %w", err)
		}
	}()

	go func() {
		log.Info("admin server listening on %s (JSON-only)", adminListener.Addr())
		if err := adminSrv.Serve(adminListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin server error: %w", err)
		}
	}()

	// Optional run timer
	var exitTimer <-chan time.Time
	if opts.exitAfter > 0 {
		log.Info("exit-after timer set: %s", opts.exitAfter)
		exitTimer = time.After(opts.exitAfter)
	}

	var runErr error
loop:
	for {
		select {
		case res := <-initCh:
			initCh = nil
			rd.set(res)
			if res.Err != nil {
				log.Error("Database initialization error: %v", res.Err)
				if opts.strictInit {
					runErr = errExit
					break loop
				}
				continue
			}
			log.Info("database initialized: %s (cost column added: %v)", dbPath, res.Report.CostAdded)
		case <-ctx.Done():
			break loop
		case <-shutdownCh:
			log.Info("shutdown requested")
			break loop
		case <-exitTimer:
			break loop
		case err := <-errCh:
			log.Error("server error: %v", err)
			runErr = errExit
			break loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.shutdownTO)
	defer cancel()

	_ = publicSrv.Shutdown(shutdownCtx)
	_ = adminSrv.Shutdown(shutdownCtx)

	// An initialization still in flight owns its store until it reports.
	if initCh != nil {
		if res := <-initCh; res.Store != nil {
			res.Store.Close()
		}
	}
	if err := rd.close(); err != nil {
		log.Warn("closing %s: %v", dbPath, err)
	}
	log.Info("shutdown complete")
	return runErr
}

func newPublicRouter(rd *readiness) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if s, phase, _ := rd.get(); s == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(strings.ToUpper(phase)))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	})

	return r
}

type statusResponse struct {
	Version   string           `json:"version"`
	BuildDate string           `json:"buildDate"`
	Time      string           `json:"time"`
	DBPath    string           `json:"dbPath"`
	Init      string           `json:"init"`
	State     store.StoreState `json:"state"`
	Columns   []string         `json:"columns,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func newAdminRouter(rd *readiness, requestShutdown func()) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(jsonOnly)

	r.Get("/admin/status", func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{
			Version:   version.String(),
			BuildDate: buildDate,
			Time:      time.Now().UTC().Format(time.RFC3339),
			DBPath:    rd.dbPath,
			State:     store.StateUninitialized,
		}

		s, phase, initErr := rd.get()
		resp.Init = phase
		if initErr != nil {
			resp.Error = initErr.Error()
		}
		if s != nil {
			cols, err := s.Columns(r.Context())
			if err != nil {
				writeJSONError(w, http.StatusInternalServerError, "introspection_failed", err.Error())
				return
			}
			resp.State = store.StateOf(cols)
			resp.Columns = store.ColumnNames(cols)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	r.Post("/admin/shutdown", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "shutting down"})
		requestShutdown()
	})

	return r
}

// jsonOnly enforces JSON-only contract for admin routes.
func jsonOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Require Accept: application/json (at least for admin)
		accept := r.Header.Get("Accept")
		if !strings.Contains(accept, "application/json") && accept != "" {
			writeJSONError(w, http.StatusNotAcceptable, "not_acceptable", "Accept must include application/json")
			return
		}
		if r.Method != http.MethodGet && r.ContentLength != 0 && !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": msg,
	})
}

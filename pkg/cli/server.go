package cli

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/mchmarny/outlier/pkg/config"
	"github.com/mchmarny/outlier/pkg/store"
	urfave "github.com/urfave/cli/v3"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
	serverPortDefault         = 8080
)

var (
	//go:embed assets/* templates/*
	embedFS embed.FS

	portFlag = &urfave.IntFlag{
		Name:     "port",
		Usage:    "Port on which the server will listen",
		Value:    serverPortDefault,
		Required: false,
	}

	noBrowserFlag = &urfave.BoolFlag{
		Name:    "no-browser",
		Aliases: []string{"nb"},
		Usage:   "Do not open browser automatically",
	}

	serverCmd = &urfave.Command{
		Name:            "server",
		Aliases:         []string{"serve"},
		Usage:           "Start the local dashboard",
		HideHelpCommand: true,
		Action:          cmdStartServer,
		Flags: []urfave.Flag{
			portFlag,
			noBrowserFlag,
			sourceFlag,
			epsFlag,
			minSamplesFlag,
			labelFlag,
			workersFlag,
		},
	}
)

func cmdStartServer(ctx context.Context, cmd *urfave.Command) error {
	cfg := *getConfig(cmd).Config
	if err := applyFlags(cmd, &cfg); err != nil {
		return err
	}

	db, err := store.Open(ctx)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer db.Close()

	port := cmd.Int(portFlag.Name)
	address := fmt.Sprintf("127.0.0.1:%d", port)

	mux := makeRouter(&cfg, db)
	s := &http.Server{
		Addr:           address,
		Handler:        mux,
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("error starting server", "error", err)
		}
	}()

	url := fmt.Sprintf("http://%s", address)
	slog.Info("server started", "address", url, "eps", cfg.Eps, "min_samples", cfg.MinSamples)

	if !cmd.Bool(noBrowserFlag.Name) {
		openBrowser(url)
	}

	select {
	case <-done:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	return nil
}

func makeRouter(cfg *config.Config, db *sql.DB) *http.ServeMux {
	tmpl := template.Must(template.New("").Funcs(templateFuncs).ParseFS(embedFS, "templates/*.html"))

	// one dataset is scored at a time
	scoreMu := &sync.Mutex{}

	mux := http.NewServeMux()

	// Static files
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(embedFS)))

	// Views
	mux.HandleFunc("GET /{$}", homeViewHandler(cfg, db, tmpl))
	mux.HandleFunc("POST /score", scoreHandler(cfg, db, scoreMu))

	// Data API
	mux.HandleFunc("GET /data/runs", runsAPIHandler(db))
	mux.HandleFunc("GET /data/runs/{id}", runAPIHandler(db))
	mux.HandleFunc("DELETE /data/runs/{id}", deleteRunAPIHandler(db))
	mux.HandleFunc("GET /data/runs/{id}/outliers", outliersAPIHandler(cfg, db))
	mux.HandleFunc("GET /data/runs/{id}/scatter", scatterAPIHandler(cfg, db))
	mux.HandleFunc("GET /data/runs/{id}/download", downloadHandler(db))

	return mux
}

func openBrowser(url string) {
	var cmd string
	args := make([]string, 0, 1)

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
	case "linux":
		cmd = "xdg-open"
	default: // windows
		cmd = "rundll32"
		args = []string{"url.dll,FileProtocolHandler"}
	}

	args = append(args, url)
	if err := exec.Command(cmd, args...).Start(); err != nil {
		slog.Error("failed to open browser", "error", err)
	}
}

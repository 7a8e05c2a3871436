package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/internal/event"
	"github.com/quillworks/quill/internal/logging"
	"github.com/quillworks/quill/internal/provider"
	"github.com/quillworks/quill/internal/runtime"
	"github.com/quillworks/quill/internal/server"
	"github.com/quillworks/quill/internal/storage"
	"github.com/quillworks/quill/internal/tool"
	"github.com/quillworks/quill/internal/workspace"
)

var (
	servePort int
	serveHost string
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quill session server",
	Long: `Start the quill server: the HTTP API for driving agent sessions,
with per-session SSE event streams.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "hostname", "", "Hostname to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Config directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	dir := serveDir
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return err
		}
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Pretty: prettyLog,
	})
	log := logging.For("main")

	log.Info().
		Str("version", Version).
		Str("dataDir", cfg.DataDir).
		Msg("starting quill server")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	records := storage.New(filepath.Join(cfg.DataDir, "records"))
	ws := workspace.NewStore(cfg.WorkspaceDir)

	ctx := context.Background()
	providers, err := provider.InitializeProviders(ctx, cfg)
	if err != nil {
		return err
	}

	bus := event.NewBus()

	sessions := runtime.NewService(&runtime.Deps{
		Records:   records,
		Workspace: ws,
		Providers: providers,
		Tools:     tool.DefaultRegistry(&tool.Deps{Workspace: ws, Records: records}),
		Bus:       bus,
		Config:    cfg,
	})

	serverConfig := server.DefaultConfig()
	serverConfig.Host = cfg.Host
	serverConfig.Port = cfg.Port

	srv := server.New(serverConfig, cfg, sessions)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown error")
	}

	sessions.Shutdown(shutdownCtx)
	if err := bus.Close(); err != nil {
		log.Warn().Err(err).Msg("bus close error")
	}

	log.Info().Msg("server stopped")
	return nil
}

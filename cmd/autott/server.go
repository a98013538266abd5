package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/autott/autott/internal/api"
	"github.com/autott/autott/internal/auth"
	"github.com/autott/autott/internal/config"
	"github.com/autott/autott/internal/credentials"
	"github.com/autott/autott/internal/engine"
	"github.com/autott/autott/internal/pipeline"
	"github.com/autott/autott/internal/staging"
	"github.com/autott/autott/internal/storage"
	"github.com/autott/autott/internal/worker"
)

var serveMCP bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the autott server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and calendar status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMCP, "mcp", false, "also serve MCP tools over stdio")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "autott version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	python, err := engine.Detect(engine.DetectConfig{Preferred: cfg.Engine.Python})
	if err != nil {
		return fmt.Errorf("detecting interpreter: %w", err)
	}
	if err := engine.EnsureReady(cfg.Engine.Script, cfg.Engine.ProjectRoot, os.Stderr); err != nil {
		return err
	}
	eng := engine.NewClient(&engine.Invoker{
		Command: python,
		Dir:     cfg.Engine.ProjectRoot,
		Timeout: cfg.Engine.Timeout,
	}, cfg.Engine.Script, cfg.Engine.ProjectRoot)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	coord := auth.New(auth.Deps{
		Engine: eng,
		Tokens: credentials.NewFileStore(cfg.Engine.TokenPath()),
		Descriptor: credentials.NewBootstrapper(cfg.Engine.DescriptorPath(), credentials.ClientSecrets{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			ProjectID:    cfg.Google.ProjectID,
			RedirectURI:  cfg.Google.RedirectURI,
		}),
		Launcher:     auth.NewLauncher(cfg.Auth.Terminal),
		Cleanup:      worker.NewScheduler(store),
		ScratchDir:   cfg.Storage.ScratchDir(),
		Python:       python,
		WorkDir:      cfg.Engine.ProjectRoot,
		CleanupDelay: cfg.Auth.WindowCleanupDelay,
	})

	stager := staging.New(cfg.Staging.Dir, int64(cfg.Staging.MaxUploadBytes))
	stopSweeper, err := stager.StartSweeper(cfg.Staging.SweepCron, cfg.Staging.MaxAge)
	if err != nil {
		return fmt.Errorf("starting staging sweeper: %w", err)
	}
	defer stopSweeper()

	pipe := pipeline.New(stager, eng, coord, store, cfg.Auth.Mode)

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewAppHandler(api.AppDeps{
			Pipeline:       pipe,
			Auth:           coord,
			Runs:           store,
			Token:          cfg.Server.Token,
			MaxUploadBytes: int64(cfg.Staging.MaxUploadBytes),
		}),
	}

	// Removes generated authorization scripts once their delay has passed.
	w := worker.NewWorker(store, cfg.Storage.ScratchDir(), 500*time.Millisecond)
	go w.Run(ctx)

	if serveMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Auth:    coord,
			Runs:    store,
			Version: version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "autott listening on %s\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type userStatus struct {
	Success       bool   `json:"success"`
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Message       string `json:"message"`
}

func showStatus(ctx context.Context) error {
	client, err := newAPIClient()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return nil
	}
	printStatus("Server", "running at %s", client.baseURL)

	resp, err = client.get(ctx, "/calendar-user")
	if err != nil {
		return err
	}
	var u userStatus
	if err := decodeJSON(resp, &u); err != nil {
		printStatus("Calendar", "unknown (%v)", err)
		return nil
	}
	switch {
	case u.Authenticated && u.Email != "":
		printStatus("Calendar", "signed in as %s", u.Email)
	case u.Authenticated:
		printStatus("Calendar", "signed in")
	case u.Message != "":
		printStatus("Calendar", "%s", u.Message)
	default:
		printStatus("Calendar", "not authenticated")
	}
	return nil
}

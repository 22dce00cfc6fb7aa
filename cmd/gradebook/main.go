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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/gradebook/internal/analysis"
	"github.com/pavelanni/gradebook/internal/client"
	"github.com/pavelanni/gradebook/internal/handler"
	appI18n "github.com/pavelanni/gradebook/internal/i18n"
	"github.com/pavelanni/gradebook/internal/llm"
	"github.com/pavelanni/gradebook/internal/llm/prompts"
	"github.com/pavelanni/gradebook/internal/local"
	"github.com/pavelanni/gradebook/internal/model"
	"github.com/pavelanni/gradebook/internal/rostercache"
	"github.com/pavelanni/gradebook/internal/session"
	"github.com/pavelanni/gradebook/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: load .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gradebook",
		Short: "Assessment draft editor with debounced sync and finalization",
	}

	serve := serveCmd()
	root.AddCommand(serve, importRosterCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `gradebook --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gradebook server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "gradebook.db", "SQLite database path")
	f.String("api-url", "", "Remote gradebook API for editing sessions (empty = local database)")
	f.Duration("api-timeout", client.DefaultTimeout, "Timeout of a remote API request")
	f.String("redis-url", "", "Redis URL for the roster cache (empty = no cache)")
	f.Duration("roster-ttl", rostercache.DefaultTTL, "How long cached rosters are served")
	f.String("llm-url", "", "OpenAI-compatible API base URL for analysis insights (empty = disabled)")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("insight-variant", string(prompts.VariantBrief), "Insight prompt variant (brief, detailed)")
	f.StringP("lang", "l", "en", "Notification language (en, fil)")
	f.Duration("score-quiet", session.DefaultScoreQuiet, "Autosave quiet period after score edits")
	f.Duration("structure-quiet", session.DefaultStructureQuiet, "Autosave quiet period after topic edits")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func importRosterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-roster FILE...",
		Short: "Import sections and students from JSON files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImportRoster,
	}
	f := cmd.Flags()
	f.String("db", "gradebook.db", "SQLite database path")
	f.StringSlice("subjects", nil, "Subject names to create (repeatable)")
	f.StringSlice("quarters", nil, "Quarter names to create (repeatable)")
	f.String("redis-url", "", "Redis URL of the roster cache to invalidate")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export drafts as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "gradebook.db", "SQLite database path")
	f.StringSlice("draft", nil, "Draft ID to export (repeatable, default all)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("GRADEBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("gradebook")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/gradebook")
	v.AddConfigPath("/etc/gradebook")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := appI18n.Match(v.GetString("lang"))

	var insighter analysis.Insighter
	if llmURL := v.GetString("llm-url"); llmURL != "" {
		insighter = llm.New(llmURL, v.GetString("llm-key"), v.GetString("llm-model"),
			strings.ToLower(strings.TrimSpace(v.GetString("insight-variant"))))
		slog.Info("analysis insights enabled", "url", llmURL, "model", v.GetString("llm-model"))
	}
	an := analysis.New(db, insighter)

	var (
		drafts  session.DraftService
		rosters session.RosterService
	)
	if apiURL := v.GetString("api-url"); apiURL != "" {
		remote := client.New(apiURL, v.GetDuration("api-timeout"))
		drafts, rosters = remote, remote
		slog.Info("editing sessions sync to remote API", "url", apiURL)
	} else {
		backend := local.New(db, an)
		drafts, rosters = backend, backend
	}

	if redisURL := v.GetString("redis-url"); redisURL != "" {
		cache, err := rostercache.New(redisURL, rosters, v.GetDuration("roster-ttl"))
		if err != nil {
			return fmt.Errorf("roster cache: %w", err)
		}
		defer cache.Close()
		rosters = cache
	}

	manager := session.NewManager(drafts, rosters, session.Config{
		EditorConfig: model.EditorConfig{
			ScoreQuiet:     v.GetDuration("score-quiet"),
			StructureQuiet: v.GetDuration("structure-quiet"),
			Lang:           lang,
		},
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	handler.New(db, an, manager).Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"db", v.GetString("db"),
			"lang", lang,
			"score_quiet", v.GetDuration("score-quiet"),
			"structure_quiet", v.GetDuration("structure-quiet"),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("could not stop server gracefully", "error", err)
	}
	// Pending autosaves are flushed before the database closes.
	if err := manager.Close(shutdownCtx); err != nil {
		return fmt.Errorf("close editing sessions: %w", err)
	}
	return nil
}

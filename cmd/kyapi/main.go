// Command kyapi serves the KY approval and risk API and carries the operator
// commands for migrations, sessions and entries.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/yourorg/kysafety/internal/db/sqlite"
	"github.com/yourorg/kysafety/internal/envconf"
)

type globals struct {
	dbPath string
	logger *slog.Logger
}

func main() {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:          "kyapi",
		Short:        "KY approval and risk pipeline",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			g.logger = newLogger(envconf.Getenv("LOG_LEVEL", "info"))
			slog.SetDefault(g.logger)
		},
	}
	root.PersistentFlags().StringVar(&g.dbPath, "db", envconf.Getenv("KY_DB_PATH", "kysafety.db"), "SQLite database path")

	root.AddCommand(
		serveCommand(g),
		migrateCommand(g),
		sessionCommand(g),
		entryCommand(g),
	)
	return root
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// openDB opens the database and brings its schema up to date.
func openDB(ctx context.Context, g *globals) (*gorm.DB, error) {
	db, err := sqlite.Open(g.dbPath)
	if err != nil {
		return nil, err
	}
	if err := sqlite.RunMigrations(ctx, db); err != nil {
		_ = sqlite.Close(db)
		return nil, err
	}
	return db, nil
}

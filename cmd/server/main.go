// Package main is the walkmate-bot entry point: the webhook server plus
// operator commands sharing one configuration
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"walkmate-bot/internal/config"
)

const (
	connectRetries    = 5
	connectRetryDelay = 2 * time.Second
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "walkmate-bot <command>",
	Short:         "WhatsApp catalog bot for Walkmate",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		setupLogger(&cfg.App, os.Stdout)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setupLogger installs the process-wide slog handler writing to out
func setupLogger(app *config.AppConfig, out io.Writer) {
	opts := &slog.HandlerOptions{Level: app.SlogLevel()}

	var h slog.Handler
	if app.LogFormat == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(h))
}

// connectMariaDB opens the pool and pings it, retrying while the
// database container is still starting
func connectMariaDB(ctx context.Context, cfg config.DBConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("configure mysql driver: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	for i := 1; i <= connectRetries; i++ {
		if err = db.PingContext(ctx); err == nil {
			slog.Info("MariaDB connection established", "host", cfg.Host, "database", cfg.Database)
			return db, nil
		}

		slog.Warn("Cannot ping MariaDB",
			"attempt", i,
			"max_attempts", connectRetries,
			"error", err,
		)
		if i < connectRetries {
			if waitErr := sleepCtx(ctx, connectRetryDelay); waitErr != nil {
				break
			}
		}
	}

	db.Close()
	return nil, fmt.Errorf("cannot connect to MariaDB after %d attempts: %w", connectRetries, err)
}

// connectRedis pings Redis with the same retry policy as MariaDB
func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	var err error
	for i := 1; i <= connectRetries; i++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			slog.Info("Redis connection established", "addr", cfg.Addr)
			return rdb, nil
		}

		slog.Warn("Cannot ping Redis",
			"attempt", i,
			"max_attempts", connectRetries,
			"error", err,
		)
		if i < connectRetries {
			if waitErr := sleepCtx(ctx, connectRetryDelay); waitErr != nil {
				break
			}
		}
	}

	rdb.Close()
	return nil, fmt.Errorf("cannot connect to Redis after %d attempts: %w", connectRetries, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

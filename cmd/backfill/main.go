// Command backfill gives every user without a slug one, against the
// database named by DB_PATH.
//
//	backfill [-batch 400]
//	backfill -hash-admin-key   # reads a key on stdin, prints its ADMIN_KEY_HASH
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/DiegoCico/Neuro/internal/auth"
	"github.com/DiegoCico/Neuro/internal/config"
	sqliteRepo "github.com/DiegoCico/Neuro/internal/repository/sqlite"
	"github.com/DiegoCico/Neuro/internal/service"
)

func main() {
	batch := flag.Int("batch", service.DefaultBackfillBatch, "slug writes per committed batch (max 500)")
	hashKey := flag.Bool("hash-admin-key", false, "hash an admin key read from stdin and exit")
	flag.Parse()

	if *hashKey {
		if err := printKeyHash(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	// Only the store settings matter here; the JWT secret is not needed.
	cfg, err := config.Read()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := config.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	updated, err := run(ctx, cfg, *batch, logger)
	if err != nil {
		logger.Error("backfill failed",
			slog.Int("updated", updated),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info("backfill finished", slog.Int("updated", updated))
}

func run(ctx context.Context, cfg *config.Config, batch int, logger *slog.Logger) (int, error) {
	db, err := sqliteRepo.New(cfg.DBPath, sqliteRepo.WithLogger(logger))
	if err != nil {
		return 0, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	resolver := service.NewIdentityResolver(db, cfg.SlugScanLimit, logger)
	return resolver.BackfillSlugs(ctx, batch)
}

func printKeyHash() error {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading key: %w", err)
	}
	hash, err := auth.NewKeyHasher().Hash(strings.TrimSpace(line))
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

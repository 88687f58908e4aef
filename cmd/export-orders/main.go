// Command export-orders dumps the full order history to a gzip-compressed
// CSV file.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	pgzip "github.com/klauspost/pgzip"

	"github.com/kvelder/shopcore/internal/order"
	"github.com/kvelder/shopcore/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		outPath     string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&outPath, "out", "orders.csv.gz", "output file path")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, outPath); err != nil {
		slog.Error("order export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("order export completed", slog.String("out", outPath))
}

func run(ctx context.Context, databaseURL, outPath string) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	orders, err := postgres.NewOrderRepository(pool).List(ctx)
	if err != nil {
		return err
	}
	slog.Info("exporting orders", slog.Int("count", len(orders)))

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := pgzip.NewWriter(f)
	cw := csv.NewWriter(gz)
	if err := order.WriteCSV(cw, orders); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return f.Sync()
}

package main

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noah-isme/paybridge/internal/obs"
	"github.com/noah-isme/paybridge/internal/store"
)

type product struct {
	SKU   string
	Name  string
	Stock int
}

var demoProducts = []product{
	{"MUG-001", "Ceramic Mug", 25},
	{"TEE-002", "Cotton T-Shirt", 40},
	{"CAP-003", "Baseball Cap", 15},
}

func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger(os.Getenv("OBS_LOG_FORMAT"), "info")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}
	if err := store.Migrate(dbURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		ids, err := seedProducts(ctx, tx, logger)
		if err != nil {
			return err
		}
		return seedOrder(ctx, tx, logger, ids)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed demo data")
	}
	logger.Info().Msg("seeding completed")
}

func seedProducts(ctx context.Context, tx pgx.Tx, logger zerolog.Logger) ([]int64, error) {
	ids := make([]int64, 0, len(demoProducts))
	for _, p := range demoProducts {
		var id int64
		err := tx.QueryRow(ctx, `
INSERT INTO products (sku, name, stock_quantity) VALUES ($1, $2, $3)
ON CONFLICT (sku) DO UPDATE SET name = EXCLUDED.name
RETURNING id`, p.SKU, p.Name, p.Stock).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		logger.Info().Str("sku", p.SKU).Int64("product_id", id).Msg("product ready")
	}
	return ids, nil
}

func seedOrder(ctx context.Context, tx pgx.Tx, logger zerolog.Logger, productIDs []int64) error {
	var orderID int64
	var key string
	err := tx.QueryRow(ctx, `
INSERT INTO orders (order_key, total, currency,
    billing_first_name, billing_last_name, billing_address_1, billing_city,
    billing_state, billing_postcode, billing_country, billing_email, billing_phone)
VALUES ('wc_order_' || substr(md5(random()::text), 1, 13), 42.50, 'USD',
    'Budi', 'Santoso', 'Jl. Merdeka 10', 'Jakarta', 'JK', '10110', 'ID',
    'budi@example.com', '+62 812 0000 0000')
RETURNING id, order_key`).Scan(&orderID, &key)
	if err != nil {
		return err
	}
	lineTotals := []float64{10.50, 32.00}
	for i, pid := range productIDs[:2] {
		if _, err := tx.Exec(ctx, `
INSERT INTO order_items (order_id, product_id, name, quantity, line_total)
VALUES ($1, $2, $3, $4, $5)`, orderID, pid, demoProducts[i].Name, i+1, lineTotals[i]); err != nil {
			return err
		}
	}
	logger.Info().Int64("order_id", orderID).Str("order_key", key).Msg("pending order ready for payment")
	return nil
}

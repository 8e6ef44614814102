package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSource stores codes in the gift_codes table. The claim is a single
// UPDATE with SKIP LOCKED so concurrent draws never collide.
type PostgresSource struct {
	pool querier
}

// NewPostgresSource initializes a source backed by pgxpool.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	if pool == nil {
		panic("inventory: pgx pool required")
	}
	return &PostgresSource{pool: pool}
}

func newPostgresSourceWithExec(exec querier) *PostgresSource {
	if exec == nil {
		panic("inventory: exec required")
	}
	return &PostgresSource{pool: exec}
}

// Draw claims the oldest available code for the product.
func (s *PostgresSource) Draw(ctx context.Context, productKey string) (*Reservation, error) {
	query := `
		UPDATE gift_codes
		SET status = 'reserved', reserved_at = now()
		WHERE id = (
			SELECT id FROM gift_codes
			WHERE product_key = $1 AND status = 'available'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, code
	`
	var res Reservation
	res.ProductKey = productKey
	if err := s.pool.QueryRow(ctx, query, productKey).Scan(&res.ID, &res.Code); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOutOfStock
		}
		return nil, fmt.Errorf("inventory: draw code for %s: %w", productKey, err)
	}
	return &res, nil
}

// MarkDelivered pins a reserved code to an order.
func (s *PostgresSource) MarkDelivered(ctx context.Context, res *Reservation, orderID string) error {
	query := `
		UPDATE gift_codes
		SET status = 'delivered', order_id = $2, delivered_at = now()
		WHERE id = $1 AND status = 'reserved'
	`
	ct, err := s.pool.Exec(ctx, query, res.ID, orderID)
	if err != nil {
		return fmt.Errorf("inventory: mark delivered: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("inventory: code %s is not reserved", res.ID)
	}
	return nil
}

// Release puts a reserved code back into the pool.
func (s *PostgresSource) Release(ctx context.Context, res *Reservation) error {
	query := `
		UPDATE gift_codes
		SET status = 'available', reserved_at = NULL
		WHERE id = $1 AND status = 'reserved'
	`
	if _, err := s.pool.Exec(ctx, query, res.ID); err != nil {
		return fmt.Errorf("inventory: release code: %w", err)
	}
	return nil
}

// Counts reports available codes per product key.
func (s *PostgresSource) Counts(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT product_key, count(*)
		FROM gift_codes
		WHERE status = 'available'
		GROUP BY product_key
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("inventory: count codes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("inventory: scan count row: %w", err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inventory: iterate count rows: %w", err)
	}
	return counts, nil
}

// AddCodes loads new codes for a product. Duplicate codes are skipped so a
// re-uploaded batch is harmless. Returns how many rows were inserted.
func (s *PostgresSource) AddCodes(ctx context.Context, productKey string, codes []string) (int, error) {
	inserted := 0
	for _, code := range codes {
		if code == "" {
			continue
		}
		query := `
			INSERT INTO gift_codes (product_key, code, status)
			VALUES ($1, $2, 'available')
			ON CONFLICT (product_key, code) DO NOTHING
		`
		ct, err := s.pool.Exec(ctx, query, productKey, code)
		if err != nil {
			return inserted, fmt.Errorf("inventory: insert code: %w", err)
		}
		inserted += int(ct.RowsAffected())
	}
	return inserted, nil
}

var _ Source = (*PostgresSource)(nil)

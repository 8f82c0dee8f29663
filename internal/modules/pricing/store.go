// README: Pricing store backed by PostgreSQL (per-tier overrides).
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, tier string) (Rate, error) {
	var r Rate
	err := s.db.QueryRow(ctx, `
		SELECT tier, cost, currency
		FROM pickup_tier_rates
		WHERE tier = $1`, tier,
	).Scan(&r.Tier, &r.Cost, &r.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrRateNotFound
	}
	return r, err
}

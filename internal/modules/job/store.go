// README: Job ticket store backed by PostgreSQL.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"repairtrack/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Insert creates the job unless the request already has one, and returns the
// id of whichever row is linked to the request.
func (s *Store) Insert(ctx context.Context, j *Job) (string, error) {
	var cost *int64
	if j.EstimatedCost != nil {
		v := j.EstimatedCost.Amount
		cost = &v
	}
	currency := ""
	if j.EstimatedCost != nil {
		currency = j.EstimatedCost.Currency
	}

	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO job_tickets (
			id, request_id, customer, customer_phone, device, issue,
			status, priority, technician, estimated_cost, currency, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (request_id) DO UPDATE SET request_id = EXCLUDED.request_id
		RETURNING id`,
		j.ID,
		string(j.RequestID),
		j.Customer,
		j.CustomerPhone,
		j.Device,
		j.Issue,
		string(j.Status),
		j.Priority,
		j.Technician,
		cost,
		currency,
		j.CreatedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", ErrDuplicateID
		}
		return "", err
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	return s.getBy(ctx, "id", id)
}

func (s *Store) GetByRequest(ctx context.Context, requestID types.ID) (*Job, error) {
	return s.getBy(ctx, "request_id", string(requestID))
}

func (s *Store) getBy(ctx context.Context, column, value string) (*Job, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, request_id, customer, customer_phone, device, issue,
		       status, priority, technician, estimated_cost, currency, created_at, updated_at
		FROM job_tickets
		WHERE %s = $1`, column), value)

	var j Job
	var cost *int64
	var currency string
	err := row.Scan(
		&j.ID, &j.RequestID, &j.Customer, &j.CustomerPhone, &j.Device, &j.Issue,
		&j.Status, &j.Priority, &j.Technician, &cost, &currency, &j.CreatedAt, &j.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if cost != nil {
		m := types.NewMoney(*cost, currency)
		j.EstimatedCost = &m
	}
	return &j, nil
}

// LastSequence returns the highest NNNN issued for year, or 0.
func (s *Store) LastSequence(ctx context.Context, year int) (int, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		SELECT id FROM job_tickets
		WHERE id LIKE $1
		ORDER BY length(id) DESC, id DESC
		LIMIT 1`, fmt.Sprintf("JOB-%d-%%", year),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ParseSequence(id), nil
}

func (s *Store) AssignTechnician(ctx context.Context, id, technician string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE job_tickets
		SET technician = $1,
		    status = CASE WHEN status = 'Pending' THEN 'In Progress' ELSE status END,
		    updated_at = $2
		WHERE id = $3`,
		technician, at, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

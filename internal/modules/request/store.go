// README: Service request store backed by PostgreSQL; compare-and-set saves with timeline rows.
package request

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

var ErrDuplicateTicket = errors.New("ticket number already taken")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectColumns = `
	id, ticket_number, customer_name, phone, address, brand, model_number, screen_size,
	primary_issue, description, service_mode, intent, status, stage, tracking_status,
	quote_status, quote_amount, quote_notes, quoted_at, quote_expires_at, accepted_at,
	pickup_tier, pickup_cost, total_amount, currency, converted_job_id,
	scheduled_pickup_date, expected_pickup_date, expected_return_date, expected_ready_date,
	payment_status, version, created_at, updated_at`

// Create inserts the request and its first timeline event in one transaction.
func (s *Store) Create(ctx context.Context, r *ServiceRequest, first TimelineEvent) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO service_requests (
			id, ticket_number, customer_name, phone, address, brand, model_number, screen_size,
			primary_issue, description, service_mode, intent, status, stage, tracking_status,
			quote_status, currency, payment_status, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $20
		)`,
		string(r.ID), r.TicketNumber, r.CustomerName, r.Phone, r.Address, r.Brand, r.ModelNumber, r.ScreenSize,
		r.PrimaryIssue, r.Description, string(r.ServiceMode), string(r.Intent), string(r.Status), string(r.Stage), string(r.TrackingStatus),
		quoteStatusArg(r.QuoteStatus), r.Currency, string(r.PaymentStatus), r.Version, r.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateTicket
		}
		return err
	}
	if err := insertEvents(ctx, tx, []TimelineEvent{first}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*ServiceRequest, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM service_requests WHERE id = $1`, string(id))
	return scanRequest(row)
}

func (s *Store) GetByTicket(ctx context.Context, ticket string) (*ServiceRequest, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM service_requests WHERE ticket_number = $1`, ticket)
	return scanRequest(row)
}

// LastTicketSequence returns the highest NNNN issued under SRV-<datePrefix>-.
func (s *Store) LastTicketSequence(ctx context.Context, datePrefix string) (int, error) {
	var ticket string
	err := s.db.QueryRow(ctx, `
		SELECT ticket_number FROM service_requests
		WHERE ticket_number LIKE $1
		ORDER BY length(ticket_number) DESC, ticket_number DESC
		LIMIT 1`, "SRV-"+datePrefix+"-%",
	).Scan(&ticket)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseTicketSequence(ticket), nil
}

// Save writes next over prev only if the row still holds prev's version and
// lifecycle values. Timeline events are inserted in the same transaction.
// It reports false when the compare-and-set misses.
func (s *Store) Save(ctx context.Context, next, prev *ServiceRequest, events []TimelineEvent) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE service_requests
		SET status = $1,
		    stage = $2,
		    tracking_status = $3,
		    quote_status = $4,
		    quote_amount = $5,
		    quote_notes = $6,
		    quoted_at = $7,
		    quote_expires_at = $8,
		    accepted_at = $9,
		    pickup_tier = $10,
		    pickup_cost = $11,
		    total_amount = $12,
		    converted_job_id = $13,
		    scheduled_pickup_date = $14,
		    expected_pickup_date = $15,
		    expected_return_date = $16,
		    expected_ready_date = $17,
		    version = version + 1,
		    updated_at = $18
		WHERE id = $19
		  AND version = $20
		  AND status = $21
		  AND stage = $22
		  AND tracking_status = $23`,
		string(next.Status),
		string(next.Stage),
		string(next.TrackingStatus),
		quoteStatusArg(next.QuoteStatus),
		moneyArg(next.QuoteAmount),
		next.QuoteNotes,
		next.QuotedAt,
		next.QuoteExpiresAt,
		next.AcceptedAt,
		tierArg(next.PickupTier),
		moneyArg(next.PickupCost),
		moneyArg(next.TotalAmount),
		next.ConvertedJobID,
		next.ScheduledPickupDate,
		next.ExpectedPickupDate,
		next.ExpectedReturnDate,
		next.ExpectedReadyDate,
		next.UpdatedAt,
		string(prev.ID),
		prev.Version,
		string(prev.Status),
		string(prev.Stage),
		string(prev.TrackingStatus),
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	if err := insertEvents(ctx, tx, events); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Timeline(ctx context.Context, id types.ID) ([]TimelineEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, request_id, field, old_value, new_value, message, actor, created_at
		FROM service_request_events
		WHERE request_id = $1
		ORDER BY id`, string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelineEvent
	for rows.Next() {
		var e TimelineEvent
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Field, &e.OldValue, &e.NewValue, &e.Message, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListExpiredQuotes returns unconverted quote requests still Quoted past
// their window.
func (s *Store) ListExpiredQuotes(ctx context.Context, now time.Time, limit int) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM service_requests
		WHERE quote_status = 'Quoted' AND quote_expires_at <= $1
		  AND converted_job_id IS NULL AND status IN ('Pending', 'Reviewed')
		ORDER BY quote_expires_at
		LIMIT $2`, now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}

func insertEvents(ctx context.Context, tx pgx.Tx, events []TimelineEvent) error {
	for _, e := range events {
		_, err := tx.Exec(ctx, `
			INSERT INTO service_request_events (
				request_id, field, old_value, new_value, message, actor, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			string(e.RequestID), string(e.Field), e.OldValue, e.NewValue, e.Message, e.Actor, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert %s event: %w", e.Field, err)
		}
	}
	return nil
}

func scanRequest(row pgx.Row) (*ServiceRequest, error) {
	var r ServiceRequest
	var quoteStatus, pickupTier *string
	var quoteAmount, pickupCost, totalAmount *int64

	err := row.Scan(
		&r.ID, &r.TicketNumber, &r.CustomerName, &r.Phone, &r.Address, &r.Brand, &r.ModelNumber, &r.ScreenSize,
		&r.PrimaryIssue, &r.Description, &r.ServiceMode, &r.Intent, &r.Status, &r.Stage, &r.TrackingStatus,
		&quoteStatus, &quoteAmount, &r.QuoteNotes, &r.QuotedAt, &r.QuoteExpiresAt, &r.AcceptedAt,
		&pickupTier, &pickupCost, &totalAmount, &r.Currency, &r.ConvertedJobID,
		&r.ScheduledPickupDate, &r.ExpectedPickupDate, &r.ExpectedReturnDate, &r.ExpectedReadyDate,
		&r.PaymentStatus, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if quoteStatus != nil {
		qs := QuoteStatus(*quoteStatus)
		r.QuoteStatus = &qs
	}
	if pickupTier != nil {
		t := PickupTier(*pickupTier)
		r.PickupTier = &t
	}
	r.QuoteAmount = toMoneyPtr(quoteAmount, r.Currency)
	r.PickupCost = toMoneyPtr(pickupCost, r.Currency)
	r.TotalAmount = toMoneyPtr(totalAmount, r.Currency)
	return &r, nil
}

func quoteStatusArg(v *QuoteStatus) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func tierArg(v *PickupTier) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func moneyArg(v *types.Money) *int64 {
	if v == nil {
		return nil
	}
	n := v.Amount
	return &n
}

func toMoneyPtr(v *int64, currency string) *types.Money {
	if v == nil {
		return nil
	}
	m := types.NewMoney(*v, currency)
	return &m
}

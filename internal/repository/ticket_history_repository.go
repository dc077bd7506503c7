package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// TicketHistoryRepository stores audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
	// LatestByType returns the newest entry of a change type, or pgx.ErrNoRows.
	LatestByType(ctx context.Context, ticketID string, changeType domain.TicketChangeType) (*domain.TicketHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

const ticketHistoryColumns = `id, ticket_id, changed_by_type, changed_by_id, change_type, old_value, new_value, created_at`

func (r *ticketHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, changed_by_type, changed_by_id, change_type, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now()
	}
	return r.pool.QueryRow(ctx, query,
		history.TicketID,
		history.ChangedByType,
		history.ChangedByID,
		history.ChangeType,
		history.OldValue,
		history.NewValue,
		history.CreatedAt,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	query := `SELECT ` + ticketHistoryColumns + ` FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		history, err := scanTicketHistory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *history)
	}
	return result, rows.Err()
}

func (r *ticketHistoryRepository) LatestByType(ctx context.Context, ticketID string, changeType domain.TicketChangeType) (*domain.TicketHistory, error) {
	query := `SELECT ` + ticketHistoryColumns + ` FROM ticket_history
              WHERE ticket_id=$1 AND change_type=$2 ORDER BY created_at DESC LIMIT 1`
	return scanTicketHistory(r.pool.QueryRow(ctx, query, ticketID, changeType))
}

func scanTicketHistory(row pgx.Row) (*domain.TicketHistory, error) {
	var history domain.TicketHistory
	if err := row.Scan(
		&history.ID,
		&history.TicketID,
		&history.ChangedByType,
		&history.ChangedByID,
		&history.ChangeType,
		&history.OldValue,
		&history.NewValue,
		&history.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &history, nil
}

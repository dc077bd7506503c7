package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// SLAHistoryRepository stores the per-phase SLA ledger. Status writes are
// conditional on the current status so overlapping sweeps cannot lose updates.
type SLAHistoryRepository interface {
	Create(ctx context.Context, entry *domain.SLAHistoryEntry) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.SLAHistoryEntry, error)
	// MarkBreached moves a pending entry to BREACHED when its target is at or
	// before at and its ticket is not paused. Both are re-checked at write
	// time because a pause or resume may land after the sweep read the entry.
	MarkBreached(ctx context.Context, entryID string, at time.Time, timeToBreachMinutes int) (bool, error)
	// MarkMet moves the ticket's pending entry for phase to MET.
	MarkMet(ctx context.Context, ticketID string, phase domain.SLAPhase, at time.Time) (bool, error)
	// StampCompletion records a late completion on a breached entry once.
	StampCompletion(ctx context.Context, ticketID string, phase domain.SLAPhase, at time.Time) (bool, error)
	// ShiftPendingTargets pushes every pending target of the ticket forward.
	ShiftPendingTargets(ctx context.Context, ticketID string, by time.Duration) (int64, error)
}

type slaHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewSLAHistoryRepository builds repository.
func NewSLAHistoryRepository(pool *pgxpool.Pool) SLAHistoryRepository {
	return &slaHistoryRepository{pool: pool}
}

const slaHistoryColumns = `id, ticket_id, phase, target_time, status, time_to_breach_minutes, actual_time, created_at, updated_at`

func (r *slaHistoryRepository) Create(ctx context.Context, entry *domain.SLAHistoryEntry) error {
	const query = `
        INSERT INTO sla_history (ticket_id, phase, target_time, status)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	if entry.Status == "" {
		entry.Status = domain.PhaseStatusPending
	}
	return r.pool.QueryRow(ctx, query,
		entry.TicketID,
		entry.Phase,
		entry.TargetTime,
		entry.Status,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
}

func (r *slaHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.SLAHistoryEntry, error) {
	query := `SELECT ` + slaHistoryColumns + ` FROM sla_history WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSLAHistory(rows)
}

func (r *slaHistoryRepository) MarkBreached(ctx context.Context, entryID string, at time.Time, timeToBreachMinutes int) (bool, error) {
	const query = `
        UPDATE sla_history SET status='BREACHED', time_to_breach_minutes=$1, updated_at=$2
        WHERE id=$3 AND status='PENDING' AND target_time <= $2
          AND NOT EXISTS (
              SELECT 1 FROM tickets t
              WHERE t.id = sla_history.ticket_id AND t.sla_status='PAUSED'
          )`
	cmd, err := r.pool.Exec(ctx, query, timeToBreachMinutes, at, entryID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *slaHistoryRepository) MarkMet(ctx context.Context, ticketID string, phase domain.SLAPhase, at time.Time) (bool, error) {
	const query = `
        UPDATE sla_history SET status='MET', actual_time=$1, updated_at=$1
        WHERE ticket_id=$2 AND phase=$3 AND status='PENDING'`
	cmd, err := r.pool.Exec(ctx, query, at, ticketID, phase)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *slaHistoryRepository) StampCompletion(ctx context.Context, ticketID string, phase domain.SLAPhase, at time.Time) (bool, error) {
	const query = `
        UPDATE sla_history SET actual_time=$1, updated_at=$1
        WHERE ticket_id=$2 AND phase=$3 AND status='BREACHED' AND actual_time IS NULL`
	cmd, err := r.pool.Exec(ctx, query, at, ticketID, phase)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *slaHistoryRepository) ShiftPendingTargets(ctx context.Context, ticketID string, by time.Duration) (int64, error) {
	const query = `
        UPDATE sla_history SET target_time = target_time + make_interval(secs => $1), updated_at=NOW()
        WHERE ticket_id=$2 AND status='PENDING'`
	cmd, err := r.pool.Exec(ctx, query, by.Seconds(), ticketID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func listPendingEntries(ctx context.Context, pool *pgxpool.Pool, ticketIDs []string) ([]domain.SLAHistoryEntry, error) {
	query := `SELECT ` + slaHistoryColumns + ` FROM sla_history
              WHERE ticket_id::text = ANY($1) AND status='PENDING' ORDER BY target_time ASC`
	rows, err := pool.Query(ctx, query, ticketIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSLAHistory(rows)
}

func scanSLAHistory(rows pgx.Rows) ([]domain.SLAHistoryEntry, error) {
	var result []domain.SLAHistoryEntry
	for rows.Next() {
		var entry domain.SLAHistoryEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Phase,
			&entry.TargetTime,
			&entry.Status,
			&entry.TimeToBreachMinutes,
			&entry.ActualTime,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

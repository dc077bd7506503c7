package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// MonitorFilter narrows the set of tickets a sweep reads.
type MonitorFilter struct {
	BusinessHoursOnly  *bool
	Priorities         []domain.TicketPriority
	ExcludeSLAStatuses []domain.SLAStatus
	Limit              int
}

// TicketRepository encapsulates ticket persistence as needed by the SLA core.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// ListMonitored returns open tickets with an active configuration and at
	// least one pending ledger entry, each with its pending entries embedded.
	ListMonitored(ctx context.Context, filter MonitorFilter) ([]domain.MonitoredTicket, error)
	UpdateSLAState(ctx context.Context, id string, status domain.SLAStatus, deadline *time.Time) error
	// TransitionSLAStatus moves the aggregate to `to` only when it currently
	// holds one of `from`, reporting whether the write applied.
	TransitionSLAStatus(ctx context.Context, id string, from []domain.SLAStatus, to domain.SLAStatus) (bool, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `t.id, t.external_key, t.title, t.assignee_staff_id, t.status, t.priority, t.sla_config_id,
               t.sla_status, t.sla_deadline, t.deadline_override, t.created_at, t.updated_at, t.closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, title, assignee_staff_id, status, priority, sla_config_id, sla_status, deadline_override)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	if ticket.SLAStatus == "" {
		ticket.SLAStatus = domain.SLAStatusWithin
	}
	return r.pool.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.Title,
		ticket.AssigneeID,
		ticket.Status,
		ticket.Priority,
		ticket.SLAConfigID,
		ticket.SLAStatus,
		ticket.DeadlineOverride,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets t WHERE t.id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(ticketScanTargets(&ticket)...); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListMonitored(ctx context.Context, filter MonitorFilter) ([]domain.MonitoredTicket, error) {
	base := `SELECT ` + ticketColumns + `, ` + slaConfigColumns + `
             FROM tickets t JOIN sla_configs c ON c.id = t.sla_config_id`
	clauses := []string{
		"c.is_active",
		"EXISTS (SELECT 1 FROM sla_history h WHERE h.ticket_id = t.id AND h.status = 'PENDING')",
	}
	args := []any{}

	placeholders := make([]string, len(domain.OpenTicketStatuses))
	for i, status := range domain.OpenTicketStatuses {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	clauses = append(clauses, fmt.Sprintf("t.status IN (%s)", strings.Join(placeholders, ",")))

	if filter.BusinessHoursOnly != nil {
		args = append(args, *filter.BusinessHoursOnly)
		clauses = append(clauses, fmt.Sprintf("c.business_hours_only=$%d", len(args)))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.ExcludeSLAStatuses) > 0 {
		placeholders := make([]string, len(filter.ExcludeSLAStatuses))
		for i, status := range filter.ExcludeSLAStatuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("t.sla_status NOT IN (%s)", strings.Join(placeholders, ",")))
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY t.created_at ASC`, base, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.MonitoredTicket
	index := map[string]int{}
	ids := []string{}
	for rows.Next() {
		var item domain.MonitoredTicket
		var cfg slaConfigRow
		targets := append(ticketScanTargets(&item.Ticket), cfg.scanTargets()...)
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		if item.Config, err = cfg.toDomain(); err != nil {
			return nil, err
		}
		index[item.Ticket.ID] = len(result)
		ids = append(ids, item.Ticket.ID)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return result, nil
	}

	entries, err := listPendingEntries(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if i, ok := index[entry.TicketID]; ok {
			result[i].Pending = append(result[i].Pending, entry)
		}
	}
	return result, nil
}

func (r *ticketRepository) UpdateSLAState(ctx context.Context, id string, status domain.SLAStatus, deadline *time.Time) error {
	const query = `UPDATE tickets SET sla_status=$1, sla_deadline=$2, updated_at=NOW() WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, status, deadline, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) TransitionSLAStatus(ctx context.Context, id string, from []domain.SLAStatus, to domain.SLAStatus) (bool, error) {
	const query = `UPDATE tickets SET sla_status=$1, updated_at=NOW() WHERE id=$2 AND sla_status = ANY($3)`
	current := make([]string, len(from))
	for i, status := range from {
		current[i] = string(status)
	}
	cmd, err := r.pool.Exec(ctx, query, to, id, current)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func ticketScanTargets(ticket *domain.Ticket) []any {
	return []any{
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.Title,
		&ticket.AssigneeID,
		&ticket.Status,
		&ticket.Priority,
		&ticket.SLAConfigID,
		&ticket.SLAStatus,
		&ticket.SLADeadline,
		&ticket.DeadlineOverride,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
	}
}

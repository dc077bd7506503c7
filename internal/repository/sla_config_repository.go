package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// SLAConfigRepository reads SLA configurations. Administrators edit them elsewhere.
type SLAConfigRepository interface {
	ListActive(ctx context.Context) ([]domain.SLAConfig, error)
	GetByID(ctx context.Context, id string) (*domain.SLAConfig, error)
}

type slaConfigRepository struct {
	pool *pgxpool.Pool
}

// NewSLAConfigRepository builds repository.
func NewSLAConfigRepository(pool *pgxpool.Pool) SLAConfigRepository {
	return &slaConfigRepository{pool: pool}
}

const slaConfigColumns = `c.id, c.name, c.priority, c.response_hours, c.resolution_hours, c.business_hours_only,
               COALESCE(to_char(c.business_start_time, 'HH24:MI:SS'), '00:00:00'),
               COALESCE(to_char(c.business_end_time, 'HH24:MI:SS'), '00:00:00'),
               c.include_weekends, c.is_active, c.timezone, c.created_at, c.updated_at`

// slaConfigRow holds the raw column values before clock times are parsed.
type slaConfigRow struct {
	cfg   domain.SLAConfig
	start string
	end   string
}

func (r *slaConfigRow) scanTargets() []any {
	return []any{
		&r.cfg.ID,
		&r.cfg.Name,
		&r.cfg.Priority,
		&r.cfg.ResponseHours,
		&r.cfg.ResolutionHours,
		&r.cfg.BusinessHoursOnly,
		&r.start,
		&r.end,
		&r.cfg.IncludeWeekends,
		&r.cfg.IsActive,
		&r.cfg.Timezone,
		&r.cfg.CreatedAt,
		&r.cfg.UpdatedAt,
	}
}

func (r *slaConfigRow) toDomain() (domain.SLAConfig, error) {
	start, err := domain.ParseTimeOfDay(r.start)
	if err != nil {
		return domain.SLAConfig{}, fmt.Errorf("sla config %s start: %w", r.cfg.ID, err)
	}
	end, err := domain.ParseTimeOfDay(r.end)
	if err != nil {
		return domain.SLAConfig{}, fmt.Errorf("sla config %s end: %w", r.cfg.ID, err)
	}
	cfg := r.cfg
	cfg.BusinessStart = start
	cfg.BusinessEnd = end
	return cfg, nil
}

func (r *slaConfigRepository) ListActive(ctx context.Context) ([]domain.SLAConfig, error) {
	query := `SELECT ` + slaConfigColumns + ` FROM sla_configs c WHERE c.is_active ORDER BY c.priority`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAConfig
	for rows.Next() {
		var row slaConfigRow
		if err := rows.Scan(row.scanTargets()...); err != nil {
			return nil, err
		}
		cfg, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, cfg)
	}
	return result, rows.Err()
}

func (r *slaConfigRepository) GetByID(ctx context.Context, id string) (*domain.SLAConfig, error) {
	query := `SELECT ` + slaConfigColumns + ` FROM sla_configs c WHERE c.id=$1`
	var row slaConfigRow
	if err := r.pool.QueryRow(ctx, query, id).Scan(row.scanTargets()...); err != nil {
		return nil, err
	}
	cfg, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

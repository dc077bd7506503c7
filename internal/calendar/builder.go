package calendar

import (
	"github.com/rickar/cal/v2"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// Builder creates calendars that share one holiday set and default timezone.
type Builder struct {
	defaultTimezone string
	holidays        []*cal.Holiday
}

// NewBuilder returns a Builder applying holidays to every calendar it builds.
// Configurations without a timezone get defaultTimezone.
func NewBuilder(defaultTimezone string, holidays []*cal.Holiday) *Builder {
	return &Builder{defaultTimezone: defaultTimezone, holidays: holidays}
}

// Build validates cfg and returns its calendar.
func (b *Builder) Build(cfg domain.SLAConfig) (*Calendar, error) {
	if b == nil {
		return New(cfg)
	}
	if cfg.Timezone == "" {
		cfg.Timezone = b.defaultTimezone
	}
	return New(cfg, b.holidays...)
}

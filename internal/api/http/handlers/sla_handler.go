package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-sla/internal/api/dto"
	"github.com/spec-kit/helpdesk-sla/internal/auth"
	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/events"
	"github.com/spec-kit/helpdesk-sla/internal/service"
	apperrors "github.com/spec-kit/helpdesk-sla/pkg/util/errorutil"
)

// SweepRunner runs a monitoring sweep on demand.
type SweepRunner interface {
	RunNow(ctx context.Context, tier service.Tier) (service.SweepResult, error)
}

// SLAHandler exposes the SLA lifecycle to internal callers.
type SLAHandler struct {
	service *service.SLAService
	sweeps  SweepRunner
}

// NewSLAHandler constructs handler. sweeps may be nil, in which case the
// on-demand sweep endpoint reports the scheduler as unavailable.
func NewSLAHandler(slaService *service.SLAService, sweeps SweepRunner) *SLAHandler {
	return &SLAHandler{service: slaService, sweeps: sweeps}
}

// Get GET /internal/sla/tickets/:id.
func (h *SLAHandler) Get(c *fiber.Ctx) error {
	view, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSLAResponse(view)})
}

// Start POST /internal/sla/tickets/:id/start.
func (h *SLAHandler) Start(c *fiber.Ctx) error {
	actor, err := callerActor(c)
	if err != nil {
		return err
	}
	view, err := h.service.StartTracking(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"data": ticketSLAResponse(view)})
}

// MarkPhaseMet POST /internal/sla/tickets/:id/phases/:phase/met.
func (h *SLAHandler) MarkPhaseMet(c *fiber.Ctx) error {
	actor, err := callerActor(c)
	if err != nil {
		return err
	}
	phase := domain.SLAPhase(strings.ToUpper(c.Params("phase")))
	view, err := h.service.MarkPhaseMet(c.UserContext(), c.Params("id"), phase, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSLAResponse(view)})
}

// Pause POST /internal/sla/tickets/:id/pause.
func (h *SLAHandler) Pause(c *fiber.Ctx) error {
	actor, err := callerActor(c)
	if err != nil {
		return err
	}
	req, err := parseTransition(c)
	if err != nil {
		return err
	}
	view, err := h.service.Pause(c.UserContext(), c.Params("id"), actor, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSLAResponse(view)})
}

// Resume POST /internal/sla/tickets/:id/resume.
func (h *SLAHandler) Resume(c *fiber.Ctx) error {
	actor, err := callerActor(c)
	if err != nil {
		return err
	}
	req, err := parseTransition(c)
	if err != nil {
		return err
	}
	view, err := h.service.Resume(c.UserContext(), c.Params("id"), actor, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSLAResponse(view)})
}

// Sweep POST /internal/sla/sweeps/:tier.
func (h *SLAHandler) Sweep(c *fiber.Ctx) error {
	if h.sweeps == nil {
		return apperrors.NewDomainError("SCHEDULER_UNAVAILABLE", "sweeps are not enabled", http.StatusServiceUnavailable, nil)
	}
	tier, ok := parseTier(c.Params("tier"))
	if !ok {
		return apperrors.NewValidationError("unknown sweep tier", map[string]any{"tier": c.Params("tier")})
	}
	result, err := h.sweeps.RunNow(c.UserContext(), tier)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SweepResponse{
		Tier:       string(result.Tier),
		Skipped:    result.Skipped,
		Scanned:    result.Scanned,
		Breached:   result.Breached,
		Warned:     result.Warned,
		Suppressed: result.Suppressed,
		Failed:     result.Failed,
		DurationMS: result.Duration.Milliseconds(),
	}})
}

func callerActor(c *fiber.Ctx) (events.Actor, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return events.Actor{}, apperrors.NewUnauthorized("service token required")
	}
	return principal.Actor(), nil
}

func parseTransition(c *fiber.Ctx) (dto.TransitionRequest, error) {
	var req dto.TransitionRequest
	if len(c.Body()) == 0 {
		return req, nil
	}
	if err := c.BodyParser(&req); err != nil {
		return req, apperrors.NewValidationError("invalid payload", nil)
	}
	req.Reason = strings.TrimSpace(req.Reason)
	return req, nil
}

func parseTier(raw string) (service.Tier, bool) {
	normalized := strings.ReplaceAll(strings.ToUpper(raw), "-", "_")
	for _, tier := range service.Tiers {
		if string(tier) == normalized {
			return tier, true
		}
	}
	return "", false
}

func ticketSLAResponse(view *service.TicketSLA) dto.TicketSLAResponse {
	phases := make([]dto.SLAPhaseResponse, 0, len(view.Entries))
	for _, entry := range view.Entries {
		phases = append(phases, dto.SLAPhaseResponse{
			Phase:               entry.Phase,
			Status:              entry.Status,
			TargetTime:          entry.TargetTime,
			ActualTime:          entry.ActualTime,
			TimeToBreachMinutes: entry.TimeToBreachMinutes,
		})
	}
	return dto.TicketSLAResponse{
		TicketID:    view.Ticket.ID,
		ExternalKey: view.Ticket.ExternalKey,
		Status:      view.Ticket.Status,
		Priority:    view.Ticket.Priority,
		SLAConfigID: view.Ticket.SLAConfigID,
		SLAStatus:   view.Ticket.SLAStatus,
		SLADeadline: view.Ticket.SLADeadline,
		Phases:      phases,
	}
}

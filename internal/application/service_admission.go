package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/viralforge/mesh/services/data-ai/M59-generation-gateway/internal/domain"
)

// CheckLimit evaluates the fixed-window bucket for one
// (identity, endpoint class, tier) triple. The budget is the tier's base
// allotment scaled by identity confidence.
func (s *Service) CheckLimit(ctx context.Context, identity domain.Identity, endpointClass, tier string) (domain.AdmissionDecision, error) {
	if !domain.IsValidEndpointClass(endpointClass) {
		return domain.AdmissionDecision{}, domain.ErrInvalidInput
	}
	limit := s.tierBudget(tier) * int64(identity.Multiplier())
	key := fmt.Sprintf("ratelimit:%s:%s:%s", identity.Key(), endpointClass, tier)

	count, resetAt, err := s.counters.IncrementWindow(ctx, key, s.cfg.RateLimit.Window)
	if err != nil {
		s.admitDegraded(ctx, "check_limit", err)
		return domain.AdmissionDecision{
			Allowed:       true,
			Limit:         limit,
			Remaining:     limit,
			ResetAt:       s.nowFn().Add(s.cfg.RateLimit.Window),
			EndpointClass: endpointClass,
			IdentityType:  identity.Type,
		}, nil
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return domain.AdmissionDecision{
		Allowed:       count <= limit,
		Limit:         limit,
		Remaining:     remaining,
		ResetAt:       resetAt,
		EndpointClass: endpointClass,
		IdentityType:  identity.Type,
	}, nil
}

// CheckGlobalCeiling applies the coarser hourly counter spanning all endpoint
// classes, so a caller cannot dodge per-class budgets by hopping classes.
func (s *Service) CheckGlobalCeiling(ctx context.Context, identity domain.Identity) (domain.AdmissionDecision, error) {
	limit := s.cfg.RateLimit.GlobalCeiling * int64(identity.Multiplier())
	key := "ratelimit:global:" + identity.Key()

	count, resetAt, err := s.counters.IncrementWindow(ctx, key, s.cfg.RateLimit.GlobalWindow)
	if err != nil {
		s.admitDegraded(ctx, "check_global_ceiling", err)
		return domain.AdmissionDecision{
			Allowed:      true,
			Limit:        limit,
			Remaining:    limit,
			ResetAt:      s.nowFn().Add(s.cfg.RateLimit.GlobalWindow),
			IdentityType: identity.Type,
		}, nil
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return domain.AdmissionDecision{
		Allowed:      count <= limit,
		Limit:        limit,
		Remaining:    remaining,
		ResetAt:      resetAt,
		IdentityType: identity.Type,
	}, nil
}

// Block writes an escalating-TTL block record for an identity. Admin only.
func (s *Service) Block(ctx context.Context, actor Actor, identity domain.Identity, severity, reason string) (domain.BlockRecord, error) {
	if !isAdminLike(actor) {
		return domain.BlockRecord{}, domain.ErrForbidden
	}
	severity = strings.ToLower(strings.TrimSpace(severity))
	if !domain.IsValidBlockSeverity(severity) || strings.TrimSpace(identity.Value) == "" {
		return domain.BlockRecord{}, domain.ErrInvalidInput
	}
	now := s.nowFn()
	ttl := domain.BlockTTL(severity)
	rec := domain.BlockRecord{
		Reason:    strings.TrimSpace(reason),
		Severity:  severity,
		BlockedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.blocks.Put(ctx, "block:"+identity.Key(), rec, ttl); err != nil {
		return domain.BlockRecord{}, err
	}
	s.logger.InfoContext(ctx, "identity blocked",
		"module", "admission",
		"operation", "block",
		"outcome", "success",
		"identity_type", identity.Type,
		"severity", severity,
		"expires_at", rec.ExpiresAt,
	)
	return rec, nil
}

// IsBlocked reports a standing block record, failing open on store errors.
func (s *Service) IsBlocked(ctx context.Context, identity domain.Identity) (*domain.BlockRecord, error) {
	rec, err := s.blocks.Get(ctx, "block:"+identity.Key())
	if err != nil {
		s.admitDegraded(ctx, "is_blocked", err)
		return nil, nil
	}
	return rec, nil
}

// Admit composes the full admission pipeline: block check first (a block
// overrides any remaining quota), then the per-class bucket, then the global
// ceiling.
func (s *Service) Admit(ctx context.Context, identity domain.Identity, endpointClass, tier string) (domain.AdmissionDecision, error) {
	if tier = strings.TrimSpace(tier); tier == "" {
		tier = s.cfg.RateLimit.DefaultTier
	}

	if rec, err := s.IsBlocked(ctx, identity); err != nil {
		return domain.AdmissionDecision{}, err
	} else if rec != nil {
		return domain.AdmissionDecision{
			Allowed:       false,
			EndpointClass: endpointClass,
			IdentityType:  identity.Type,
			DenyCode:      domain.DenyCodeBlocked,
			Reason:        rec.Reason,
			BlockedUntil:  rec.ExpiresAt,
		}, nil
	}

	decision, err := s.CheckLimit(ctx, identity, endpointClass, tier)
	if err != nil {
		return domain.AdmissionDecision{}, err
	}
	if !decision.Allowed {
		decision.DenyCode = domain.DenyCodeRateLimit
		return decision, nil
	}

	ceiling, err := s.CheckGlobalCeiling(ctx, identity)
	if err != nil {
		return domain.AdmissionDecision{}, err
	}
	if !ceiling.Allowed {
		ceiling.EndpointClass = endpointClass
		ceiling.DenyCode = domain.DenyCodeRateLimit
		return ceiling, nil
	}
	return decision, nil
}

// ResolveTier picks the tier for an identity: explicit api key mapping,
// otherwise the configured default.
func (s *Service) ResolveTier(identity domain.Identity) string {
	if identity.Type == domain.IdentityTypeAPIKey {
		if tier, ok := s.cfg.RateLimit.APIKeyTiers[identity.Value]; ok {
			return tier
		}
	}
	return s.cfg.RateLimit.DefaultTier
}

func (s *Service) tierBudget(tier string) int64 {
	if points, ok := s.cfg.RateLimit.TierBasePoints[tier]; ok {
		return points
	}
	return s.cfg.RateLimit.TierBasePoints[s.cfg.RateLimit.DefaultTier]
}

// admitDegraded records a fail-open event: denying all traffic during a
// short store outage costs more than briefly unmetered access.
func (s *Service) admitDegraded(ctx context.Context, operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordDegradation()
	}
	s.logger.WarnContext(ctx, "admission store unreachable, failing open",
		"module", "admission",
		"operation", operation,
		"outcome", "degraded",
		"error", err.Error(),
	)
}

func isAdminLike(actor Actor) bool {
	switch strings.ToLower(strings.TrimSpace(actor.Role)) {
	case "admin", "sre", "system":
		return true
	default:
		return false
	}
}

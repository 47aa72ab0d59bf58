package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chronicler-labs/chronicler/core/pkg/audit"
	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
	"github.com/chronicler-labs/chronicler/core/pkg/registry"
)

// Default policy limits, applied to any subject without an assignment.
const (
	defaultDailyLimit      = 10000
	defaultMaxResourceCost = 1000000
	defaultMaxRisk         = 50
	defaultCooldownSeconds = 0
)

// MaxCooldownSeconds caps cooldowns at one rolling window.
const MaxCooldownSeconds = 86400

// Service is the policy store: it owns Policy and PolicyAssignment records and
// resolves the effective policy for any subject.
type Service struct {
	store  Store
	reg    registry.Registry
	events audit.Logger
	log    *slog.Logger
	clock  func() time.Time
}

// NewService creates the service and guarantees the default policy exists and
// is active.
func NewService(store Store, reg registry.Registry, events audit.Logger) (*Service, error) {
	if events == nil {
		events = audit.NopLogger{}
	}
	s := &Service{store: store, reg: reg, events: events, log: slog.Default(), clock: time.Now}
	if err := s.ensureDefault(context.Background()); err != nil {
		return nil, fmt.Errorf("policy: seeding default policy: %w", err)
	}
	return s, nil
}

// WithClock overrides clock for testing.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// WithLogger overrides the logger that reports dropped audit events.
func (s *Service) WithLogger(log *slog.Logger) *Service {
	if log != nil {
		s.log = log
	}
	return s
}

func (s *Service) ensureDefault(ctx context.Context) error {
	_, err := s.store.GetPolicy(ctx, contracts.DefaultPolicyID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, contracts.ErrNotFound) {
		return err
	}
	now := s.clock()
	return s.store.PutPolicy(ctx, contracts.Policy{
		PolicyID:        contracts.DefaultPolicyID,
		DailyLimit:      defaultDailyLimit,
		MaxResourceCost: defaultMaxResourceCost,
		MaxRisk:         defaultMaxRisk,
		CooldownSeconds: defaultCooldownSeconds,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

func validateBounds(dailyLimit, maxResourceCost, maxRisk, cooldownSeconds int64) error {
	if dailyLimit <= 0 {
		return fmt.Errorf("%w: daily limit must be positive", contracts.ErrInvalidParameter)
	}
	if maxResourceCost <= 0 {
		return fmt.Errorf("%w: max resource cost must be positive", contracts.ErrInvalidParameter)
	}
	if maxRisk < 0 || maxRisk > 100 {
		return fmt.Errorf("%w: max risk must be 0-100", contracts.ErrInvalidParameter)
	}
	if cooldownSeconds < 0 || cooldownSeconds > MaxCooldownSeconds {
		return fmt.Errorf("%w: cooldown must be 0-%d seconds", contracts.ErrInvalidParameter, MaxCooldownSeconds)
	}
	return nil
}

// CreatePolicy allocates a new active policy and returns its id.
func (s *Service) CreatePolicy(ctx context.Context, dailyLimit, maxResourceCost, maxRisk, cooldownSeconds int64) (int64, error) {
	if err := validateBounds(dailyLimit, maxResourceCost, maxRisk, cooldownSeconds); err != nil {
		return 0, err
	}

	id, err := s.store.NextPolicyID(ctx)
	if err != nil {
		return 0, err
	}
	now := s.clock()
	p := contracts.Policy{
		PolicyID:        id,
		DailyLimit:      dailyLimit,
		MaxResourceCost: maxResourceCost,
		MaxRisk:         maxRisk,
		CooldownSeconds: cooldownSeconds,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.PutPolicy(ctx, p); err != nil {
		return 0, err
	}

	if err := s.events.Record(ctx, audit.EventPolicyCreated, fmt.Sprintf("policy:%d", id), map[string]any{
		"policy": p,
	}); err != nil {
		s.log.Warn("audit event dropped", "type", audit.EventPolicyCreated, "error", err)
	}
	return id, nil
}

// UpdatePolicy overwrites all four limit fields of an existing policy.
// The active flag is untouched.
func (s *Service) UpdatePolicy(ctx context.Context, policyID, dailyLimit, maxResourceCost, maxRisk, cooldownSeconds int64) error {
	if err := validateBounds(dailyLimit, maxResourceCost, maxRisk, cooldownSeconds); err != nil {
		return err
	}

	p, err := s.store.GetPolicy(ctx, policyID)
	if err != nil {
		return err
	}
	p.DailyLimit = dailyLimit
	p.MaxResourceCost = maxResourceCost
	p.MaxRisk = maxRisk
	p.CooldownSeconds = cooldownSeconds
	p.UpdatedAt = s.clock()
	if err := s.store.PutPolicy(ctx, p); err != nil {
		return err
	}

	if err := s.events.Record(ctx, audit.EventPolicyUpdated, fmt.Sprintf("policy:%d", policyID), map[string]any{
		"policy": p,
	}); err != nil {
		s.log.Warn("audit event dropped", "type", audit.EventPolicyUpdated, "error", err)
	}
	return nil
}

// SetActive toggles a policy. Policies are never deleted, only deactivated.
// The default policy cannot be deactivated.
func (s *Service) SetActive(ctx context.Context, policyID int64, active bool) error {
	if policyID == contracts.DefaultPolicyID && !active {
		return fmt.Errorf("%w: default policy cannot be deactivated", contracts.ErrInvalidParameter)
	}
	p, err := s.store.GetPolicy(ctx, policyID)
	if err != nil {
		return err
	}
	p.Active = active
	p.UpdatedAt = s.clock()
	return s.store.PutPolicy(ctx, p)
}

// AssignPolicy binds a subject to a policy, replacing any prior assignment.
// The policy must exist and be active; the subject must be registered.
func (s *Service) AssignPolicy(ctx context.Context, kind contracts.SubjectKind, subjectID string, policyID int64) error {
	if !kind.Valid() || subjectID == "" {
		return fmt.Errorf("%w: bad subject", contracts.ErrInvalidParameter)
	}

	p, err := s.store.GetPolicy(ctx, policyID)
	if err != nil {
		return err
	}
	if !p.Active {
		return fmt.Errorf("%w: policy %d is inactive", contracts.ErrNotFound, policyID)
	}

	switch kind {
	case contracts.SubjectAgent:
		if !s.reg.IsValidAgent(ctx, subjectID) {
			return fmt.Errorf("%w: agent %s not registered", contracts.ErrNotFound, subjectID)
		}
	case contracts.SubjectTool:
		if !s.reg.IsValidTool(ctx, subjectID) {
			return fmt.Errorf("%w: tool %s not registered", contracts.ErrNotFound, subjectID)
		}
	}

	a := contracts.PolicyAssignment{
		SubjectKind: kind,
		SubjectID:   subjectID,
		PolicyID:    policyID,
		Active:      true,
		AssignedAt:  s.clock(),
	}
	if err := s.store.PutAssignment(ctx, a); err != nil {
		return err
	}

	if err := s.events.Record(ctx, audit.EventPolicyAssigned, subjectID, map[string]any{
		"assignment": a,
	}); err != nil {
		s.log.Warn("audit event dropped", "type", audit.EventPolicyAssigned, "error", err)
	}
	return nil
}

// RevokeAssignment removes a subject's assignment; resolution falls back to
// the default policy afterwards.
func (s *Service) RevokeAssignment(ctx context.Context, kind contracts.SubjectKind, subjectID string) error {
	if err := s.store.DeleteAssignment(ctx, kind, subjectID); err != nil {
		return err
	}
	if err := s.events.Record(ctx, audit.EventPolicyRevoked, subjectID, map[string]any{
		"subject_kind": kind,
	}); err != nil {
		s.log.Warn("audit event dropped", "type", audit.EventPolicyRevoked, "error", err)
	}
	return nil
}

// ResolveEffectivePolicy returns the subject's assigned policy if that
// assignment and policy are both active, else the default policy.
// Pure read; called on every access check.
func (s *Service) ResolveEffectivePolicy(ctx context.Context, kind contracts.SubjectKind, subjectID string) (contracts.Policy, error) {
	a, err := s.store.GetAssignment(ctx, kind, subjectID)
	if errors.Is(err, contracts.ErrNotFound) {
		return s.store.GetPolicy(ctx, contracts.DefaultPolicyID)
	}
	if err != nil {
		return contracts.Policy{}, err
	}
	if !a.Active {
		return s.store.GetPolicy(ctx, contracts.DefaultPolicyID)
	}

	p, err := s.store.GetPolicy(ctx, a.PolicyID)
	if errors.Is(err, contracts.ErrNotFound) {
		return s.store.GetPolicy(ctx, contracts.DefaultPolicyID)
	}
	if err != nil {
		return contracts.Policy{}, err
	}
	if !p.Active {
		return s.store.GetPolicy(ctx, contracts.DefaultPolicyID)
	}
	return p, nil
}

// GetPolicy retrieves a policy by id.
func (s *Service) GetPolicy(ctx context.Context, policyID int64) (contracts.Policy, error) {
	return s.store.GetPolicy(ctx, policyID)
}

// ListPolicies returns all policies ordered by id.
func (s *Service) ListPolicies(ctx context.Context) ([]contracts.Policy, error) {
	return s.store.ListPolicies(ctx)
}

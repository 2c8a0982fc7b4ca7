// Package gate is the evaluation front door: one request carries a subject,
// its scope chain, and a fact context; out comes a single resolved decision
// with a full audit record of every rule that fired.
package gate

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cartorio-ai/cartorio/pkg/decision"
	"github.com/cartorio-ai/cartorio/pkg/facts"
	"github.com/cartorio-ai/cartorio/pkg/identifier"
	"github.com/cartorio-ai/cartorio/pkg/law"
	"github.com/cartorio-ai/cartorio/pkg/policy"
)

var (
	// ErrInvalidIdentifier rejects requests whose actor fails checksum
	// validation.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrUnresolvedSubject rejects requests whose subject or scope chain
	// entries are malformed.
	ErrUnresolvedSubject = errors.New("unresolved subject")
)

// recordNamespace seeds the deterministic decision record ids.
var recordNamespace = uuid.MustParse("8c9e4a0a-0b3f-4f5e-9a77-0d2f6c1b5e21")

// Request is one evaluation question.
type Request struct {
	// Subject names the ids laws bind to, keyed by law scope.
	Subject law.Subject
	// Chain is the subject's policy scope chain, most general first.
	Chain []policy.ScopeRef
	// Actor is the requesting identity; validated when the gate holds an
	// identifier secret.
	Actor identifier.Identifier
	// Facts is the flat fact context both mechanisms evaluate over.
	Facts facts.Context
}

// Record is the audit row produced by one evaluation. Its ID is derived
// from the inputs hash, so replaying identical inputs yields the same id.
type Record struct {
	ID          string            `json:"id"`
	Decision    decision.Decision `json:"decision"`
	Winner      string            `json:"winner,omitempty"`
	RulesFired  []string          `json:"rules_fired"`
	InputsHash  string            `json:"inputs_hash"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
}

// Service runs both rule mechanisms and resolves their raw decisions.
type Service struct {
	registry  *law.Registry
	evaluator *policy.Evaluator
	secret    string
	logger    *slog.Logger
	clock     func() time.Time

	mu       sync.RWMutex
	policies []policy.Policy

	tracer          trace.Tracer
	decisionCounter metric.Int64Counter
	blockedCounter  metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithIdentifierSecret enables actor checksum validation.
func WithIdentifierSecret(secret string) Option {
	return func(s *Service) { s.secret = secret }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// New creates the gate over a law registry and a policy evaluator.
func New(registry *law.Registry, evaluator *policy.Evaluator, opts ...Option) *Service {
	s := &Service{
		registry:  registry,
		evaluator: evaluator,
		logger:    slog.Default().With("component", "gate"),
		clock:     time.Now,
		tracer:    otel.Tracer("cartorio.gate"),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter("cartorio.gate")
	s.decisionCounter, _ = meter.Int64Counter("cartorio.decisions.total",
		metric.WithDescription("Decisions issued, by kind"),
		metric.WithUnit("{decision}"),
	)
	s.blockedCounter, _ = meter.Int64Counter("cartorio.decisions.blocked",
		metric.WithDescription("Decisions that blocked the requested action"),
		metric.WithUnit("{decision}"),
	)
	return s
}

// SetPolicies replaces the structured policy set. The slice is taken in
// creation order; it is copied, not retained.
func (s *Service) SetPolicies(policies []policy.Policy) {
	cp := make([]policy.Policy, len(policies))
	copy(cp, policies)
	s.mu.Lock()
	s.policies = cp
	s.mu.Unlock()
}

// Evaluate answers one request.
func (s *Service) Evaluate(ctx context.Context, req Request) (*Record, error) {
	ctx, span := s.tracer.Start(ctx, "gate.Evaluate")
	defer span.End()

	if err := s.vet(req); err != nil {
		span.RecordError(err)
		return nil, err
	}

	raws := s.registry.Evaluate(req.Subject, req.Facts)
	s.mu.RLock()
	policies := s.policies
	s.mu.RUnlock()
	if raw := s.evaluator.Evaluate(req.Chain, policies, req.Facts); raw.RuleID != policy.DefaultRuleID {
		raw.Order += len(raws)
		raws = append(raws, raw)
	}
	res := decision.Resolve(raws, s.evaluator.DefaultDecision())

	hash, err := inputsHash(req)
	if err != nil {
		return nil, err
	}
	rec := &Record{
		ID:          uuid.NewSHA1(recordNamespace, []byte(hash)).String(),
		Decision:    res.Decision,
		RulesFired:  res.RulesFired,
		InputsHash:  hash,
		EvaluatedAt: s.clock().UTC(),
	}
	if res.Winner != nil {
		rec.Winner = fmt.Sprintf("%s.%s", res.Winner.Mechanism, res.Winner.RuleID)
	}

	attrs := metric.WithAttributes(attribute.String("decision", string(res.Decision.Kind)))
	s.decisionCounter.Add(ctx, 1, attrs)
	if res.Decision.Blocking() {
		s.blockedCounter.Add(ctx, 1, attrs)
	}
	span.SetAttributes(
		attribute.String("decision", string(res.Decision.Kind)),
		attribute.String("winner", rec.Winner),
		attribute.Int("rules_fired", len(res.RulesFired)),
	)
	s.logger.InfoContext(ctx, "decision issued",
		"record_id", rec.ID,
		"decision", string(res.Decision.Kind),
		"winner", rec.Winner,
		"rules_fired", len(res.RulesFired),
	)
	return rec, nil
}

// Bound pins a subject and scope chain so downstream callers (the contract
// lifecycle engine, tool dispatch) can resolve decisions from facts alone.
type Bound struct {
	service *Service
	subject law.Subject
	chain   []policy.ScopeRef
	actor   identifier.Identifier
}

// Bind fixes the subject side of future evaluations.
func (s *Service) Bind(subject law.Subject, chain []policy.ScopeRef, actor identifier.Identifier) *Bound {
	return &Bound{service: s, subject: subject, chain: chain, actor: actor}
}

// Resolve satisfies the contract engine's resolver contract.
func (b *Bound) Resolve(ctx context.Context, fc facts.Context) (decision.Resolution, error) {
	rec, err := b.service.Evaluate(ctx, Request{
		Subject: b.subject,
		Chain:   b.chain,
		Actor:   b.actor,
		Facts:   fc,
	})
	if err != nil {
		return decision.Resolution{}, err
	}
	return decision.Resolution{Decision: rec.Decision, RulesFired: rec.RulesFired}, nil
}

// vet rejects malformed requests. An empty subject and chain is not
// malformed: it simply matches no targeted rules and resolves to the
// default decision.
func (s *Service) vet(req Request) error {
	for scope, id := range req.Subject {
		if id == "" {
			return fmt.Errorf("%w: empty id at scope %s", ErrUnresolvedSubject, scope)
		}
	}
	for _, ref := range req.Chain {
		if !ref.Scope.Valid() {
			return fmt.Errorf("%w: unknown policy scope %q", ErrUnresolvedSubject, ref.Scope)
		}
	}
	if s.secret != "" && req.Actor != "" {
		if !identifier.Validate(req.Actor, s.secret) {
			return fmt.Errorf("%w: %s", ErrInvalidIdentifier, req.Actor)
		}
	}
	return nil
}

// inputsHash canonicalizes the request for the audit record.
func inputsHash(req Request) (string, error) {
	doc := map[string]any{
		"subject": req.Subject,
		"chain":   req.Chain,
		"actor":   string(req.Actor),
		"facts":   map[string]any(req.Facts),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("gate: marshal inputs: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("gate: canonicalize inputs: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return fmt.Sprintf("sha256:%x", sum), nil
}

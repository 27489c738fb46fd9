package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/chain"
	"srwa/internal/compliance/metrics"
	"srwa/internal/compliance/models"
	dErrors "srwa/pkg/domain-errors"
	"srwa/pkg/platform/audit"
	"srwa/pkg/platform/sentinel"
	"srwa/pkg/requestcontext"
)

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Service reads and writes compliance records on the compliance program.
// The authority key signs every write and pays for new records.
type Service struct {
	chain          chain.Client
	program        solana.PublicKey
	authority      solana.PublicKey
	autoRegister   bool
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAutoRegister controls whether EnsureRegistered creates missing records.
func WithAutoRegister(enabled bool) Option {
	return func(s *Service) {
		s.autoRegister = enabled
	}
}

// New constructs a Service. Auto-registration is on unless disabled.
func New(client chain.Client, program, authority solana.PublicKey, opts ...Option) *Service {
	s := &Service{
		chain:        client,
		program:      program,
		authority:    authority,
		autoRegister: true,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Program is the compliance program id.
func (s *Service) Program() solana.PublicKey { return s.program }

// RecordAddress derives the record address of subject.
func (s *Service) RecordAddress(subject solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := models.RecordAddress(s.program, subject)
	return addr, err
}

// Lookup returns the record of subject or a CodeNotFound error wrapping
// sentinel.ErrNotFound.
func (s *Service) Lookup(ctx context.Context, subject solana.PublicKey) (*models.Record, error) {
	rec, err := s.read(ctx, subject)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound,
			fmt.Sprintf("no compliance record for %s", subject))
	}
	return rec, nil
}

// read returns nil without error when the record is absent.
func (s *Service) read(ctx context.Context, subject solana.PublicKey) (*models.Record, error) {
	defer s.metrics.ObserveLookup(time.Now())

	addr, err := s.RecordAddress(subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive compliance record address")
	}
	acct, err := chain.GetAccountIfExists(ctx, s.chain, addr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read compliance record")
	}
	if acct == nil {
		return nil, nil
	}
	if !acct.Owner.Equals(s.program) {
		return nil, dErrors.New(dErrors.CodeInternal,
			fmt.Sprintf("compliance record %s is owned by %s", addr, acct.Owner))
	}
	rec, err := models.DecodeRecord(addr, acct.Data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode compliance record")
	}
	return rec, nil
}

// EnsureRegistered guarantees subject has a verified, active record before a
// transfer. An inactive or unverified record is an error and is never
// re-activated here. A missing record is created with verified=active=true
// when auto-registration is on.
func (s *Service) EnsureRegistered(ctx context.Context, subject solana.PublicKey) error {
	rec, err := s.read(ctx, subject)
	if err != nil {
		return err
	}
	if rec != nil {
		if rec.Cleared() {
			s.metrics.IncRegistration(metrics.OutcomeAlreadyCleared)
			return nil
		}
		s.metrics.IncRegistration(metrics.OutcomeInactive)
		return inactiveError(rec)
	}

	if !s.autoRegister {
		s.metrics.IncRegistration(metrics.OutcomeMissing)
		return dErrors.New(dErrors.CodeComplianceMissing,
			fmt.Sprintf("wallet %s has no compliance record", subject))
	}

	ix, err := models.NewInitializeInstruction(s.program, s.authority, subject, true, true)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build registration instruction")
	}
	sig, submitErr := s.chain.Submit(ctx, s.authority, ix)
	if submitErr != nil {
		// A concurrent registration may have won; the record is what matters.
		rec, err := s.read(ctx, subject)
		if err == nil && rec != nil {
			if !rec.Cleared() {
				s.metrics.IncRegistration(metrics.OutcomeInactive)
				return inactiveError(rec)
			}
			s.metrics.IncRegistration(metrics.OutcomeConcurrent)
			s.logger.InfoContext(ctx, "compliance record appeared after failed registration",
				"subject", subject.String(),
				"error", submitErr,
				"request_id", requestcontext.RequestID(ctx),
			)
			return nil
		}
		s.metrics.IncRegistration(metrics.OutcomeFailed)
		s.logger.ErrorContext(ctx, "compliance registration failed",
			"subject", subject.String(),
			"error", submitErr,
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.Wrap(submitErr, dErrors.CodeEnsureRegistrationFailed,
			fmt.Sprintf("could not register compliance record for %s", subject))
	}

	s.metrics.IncRegistration(metrics.OutcomeRegistered)
	return s.logAudit(ctx, audit.EventComplianceRegistered, subject, sig, "verified", "")
}

// Attest records the outcome of an external verification: the record is
// created or updated with the given verified flag and marked active.
func (s *Service) Attest(ctx context.Context, subject solana.PublicKey, verified bool) (*models.Record, error) {
	rec, err := s.read(ctx, subject)
	if err != nil {
		return nil, err
	}

	var ix solana.Instruction
	if rec == nil {
		ix, err = models.NewInitializeInstruction(s.program, s.authority, subject, verified, true)
	} else {
		ix, err = models.NewUpdateInstruction(s.program, s.authority, subject, verified, true)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build attestation instruction")
	}
	sig, err := s.chain.Submit(ctx, s.authority, ix)
	if err != nil {
		return nil, chain.SubmitError(err, solana.PublicKey{}, "attest compliance")
	}

	s.metrics.IncUpdate("attest")
	decision := "unverified"
	if verified {
		decision = "verified"
	}
	if err := s.logAudit(ctx, audit.EventComplianceAttested, subject, sig, decision, ""); err != nil {
		return nil, err
	}
	return s.Lookup(ctx, subject)
}

// Revoke marks the record inactive. Revoking an inactive record is a no-op.
func (s *Service) Revoke(ctx context.Context, subject solana.PublicKey, reason string) (*models.Record, error) {
	rec, err := s.Lookup(ctx, subject)
	if err != nil {
		return nil, err
	}
	if !rec.Active {
		return rec, nil
	}

	ix, err := models.NewUpdateInstruction(s.program, s.authority, subject, rec.Verified, false)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build revocation instruction")
	}
	sig, err := s.chain.Submit(ctx, s.authority, ix)
	if err != nil {
		return nil, chain.SubmitError(err, solana.PublicKey{}, "revoke compliance")
	}

	s.metrics.IncUpdate("revoke")
	if err := s.logAudit(ctx, audit.EventComplianceRevoked, subject, sig, "revoked", reason); err != nil {
		return nil, err
	}
	return s.Lookup(ctx, subject)
}

func inactiveError(rec *models.Record) error {
	state := "inactive"
	if !rec.Verified {
		state = "unverified"
	}
	return dErrors.New(dErrors.CodeComplianceInactive,
		fmt.Sprintf("wallet %s compliance record is %s", rec.Subject, state))
}

// logAudit fails closed: a compliance change whose audit event cannot be
// stored is reported as failed, although the on-chain change stands.
func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, subject solana.PublicKey, sig solana.Signature, decision, reason string) error {
	requestID := requestcontext.RequestID(ctx)
	s.logger.InfoContext(ctx, string(event),
		"event", string(event),
		"log_type", "audit",
		"subject", subject.String(),
		"signature", sig.String(),
		"decision", decision,
		"request_id", requestID,
	)
	if s.auditPublisher == nil {
		return nil
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Subject:   subject.String(),
		Action:    string(event),
		Decision:  decision,
		Reason:    reason,
		Signature: sig.String(),
		RequestID: requestID,
		ActorID:   requestcontext.Actor(ctx),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed",
			"event", string(event),
			"subject", subject.String(),
			"signature", sig.String(),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal,
			fmt.Sprintf("%s committed in %s but its audit event was not recorded", event, sig))
	}
	return nil
}

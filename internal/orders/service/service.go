package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel/attribute"

	distribution "srwa/internal/distribution/models"
	"srwa/internal/orders/metrics"
	"srwa/internal/orders/models"
	"srwa/internal/orders/store"
	"srwa/internal/platform/tracing"
	dErrors "srwa/pkg/domain-errors"
	"srwa/pkg/platform/audit"
	"srwa/pkg/platform/sentinel"
	"srwa/pkg/requestcontext"
)

// Ledger is the purchase order program.
type Ledger interface {
	Create(ctx context.Context, buyer, mint solana.PublicKey, quantity, unitPrice uint64, nonce int64) (solana.PublicKey, solana.Signature, error)
	MarkApproved(ctx context.Context, o *models.Order) (solana.Signature, error)
	Reject(ctx context.Context, o *models.Order, reason string) (solana.Signature, error)
	Fetch(ctx context.Context, address solana.PublicKey) (*models.Order, error)
}

// Store is the order read index. FindByAddress returns sentinel.ErrNotFound
// for unknown orders.
type Store interface {
	Save(ctx context.Context, o *models.Order) error
	FindByAddress(ctx context.Context, address solana.PublicKey) (*models.Order, error)
	List(ctx context.Context, filter store.Filter) ([]*models.Order, error)
}

// Distributor delivers tokens at most once per key.
type Distributor interface {
	Distribute(ctx context.Context, req distribution.Request) (*distribution.Receipt, error)
}

// DistributionLookup reads distribution progress by idempotency key and
// returns sentinel.ErrNotFound for keys never begun.
type DistributionLookup interface {
	Get(ctx context.Context, key string) (*distribution.Entry, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// CreateRequest describes a new order. Quantity is in whole tokens and
// UnitPrice in lamports per token.
type CreateRequest struct {
	Buyer     solana.PublicKey
	Mint      solana.PublicKey
	Quantity  uint64
	UnitPrice uint64
}

// Service runs the purchase order workflow: escrowed creation, approval by
// distribution, and refunding rejection.
type Service struct {
	ledger         Ledger
	store          Store
	distributor    Distributor
	distributions  DistributionLookup
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	nonce          func(time.Time) int64
}

// maxNonceAttempts bounds how many fresh nonces Create draws when an order
// address is already taken.
const maxNonceAttempts = 3

type Option func(*Service)

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

// WithDistributionLookup makes Reject refuse orders whose tokens are being,
// or have been, delivered.
func WithDistributionLookup(lookup DistributionLookup) Option {
	return func(s *Service) {
		s.distributions = lookup
	}
}

// WithNonceSource replaces the order nonce generator.
func WithNonceSource(next func(time.Time) int64) Option {
	return func(s *Service) {
		s.nonce = next
	}
}

func New(ledger Ledger, index Store, distributor Distributor, opts ...Option) *Service {
	s := &Service{
		ledger:      ledger,
		store:       index,
		distributor: distributor,
		logger:      slog.Default(),
		nonce:       models.NewNonce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create escrows the order total and records the order. The nonce is the
// request time in unix microseconds with a random sub-millisecond suffix; a
// nonce whose address is already taken is drawn again.
func (s *Service) Create(ctx context.Context, req CreateRequest) (o *models.Order, err error) {
	ctx, span := tracing.Start(ctx, "orders.create",
		attribute.String("buyer", req.Buyer.String()),
		attribute.String("mint", req.Mint.String()),
	)
	defer func() {
		tracing.End(span, err)
		s.countTransition(metrics.ActionCreate, err)
	}()

	total, err := models.EscrowTotal(req.Quantity, req.UnitPrice)
	if err != nil {
		return nil, err
	}
	var address solana.PublicKey
	var sig solana.Signature
	for range maxNonceAttempts {
		address, sig, err = s.ledger.Create(ctx, req.Buyer, req.Mint, req.Quantity, req.UnitPrice, s.nonce(requestcontext.Now(ctx)))
		if !errors.Is(err, models.ErrAddressTaken) {
			break
		}
	}
	if err != nil {
		s.logger.WarnContext(ctx, "order creation failed",
			"order", address.String(),
			"buyer", req.Buyer.String(),
			"mint", req.Mint.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}

	o, err = s.refresh(ctx, address, nil)
	if err != nil {
		return nil, err
	}
	s.metrics.AddEscrowed(total)
	s.logAudit(ctx, audit.EventOrderCreated, o, sig, "pending", "")
	return o, nil
}

// Approve delivers the ordered tokens to the buyer and then marks the order
// approved. The order address is the distribution key, so a retried approval
// never delivers twice. A failed distribution leaves the order pending.
func (s *Service) Approve(ctx context.Context, address solana.PublicKey) (o *models.Order, err error) {
	ctx, span := tracing.Start(ctx, "orders.approve", attribute.String("order", address.String()))
	defer func() {
		tracing.End(span, err)
		s.countTransition(metrics.ActionApprove, err)
	}()

	o, err = s.Sync(ctx, address)
	if err != nil {
		return nil, err
	}
	if err = o.CanApprove(); err != nil {
		return nil, err
	}

	receipt, err := s.distributor.Distribute(ctx, distribution.Request{
		Mint:      o.Mint,
		Recipient: o.Buyer,
		Amount:    distribution.WholeUnits(o.Quantity),
		Key:       o.Address.String(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "order distribution failed, order stays pending",
			"order", address.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}

	sig, err := s.ledger.MarkApproved(ctx, o)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeAlreadyFinalized) {
			_, _ = s.refresh(ctx, address, nil)
		}
		s.logger.ErrorContext(ctx, "tokens delivered but approval mark failed",
			"order", address.String(),
			"distribution_signature", receipt.Signature.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, err
	}

	approvalTx := receipt.Signature
	o, err = s.refresh(ctx, address, &approvalTx)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.EventOrderApproved, o, sig, "approved", "")
	return o, nil
}

// Reject refunds the escrow to the buyer and marks the order rejected.
func (s *Service) Reject(ctx context.Context, address solana.PublicKey, reason string) (o *models.Order, err error) {
	ctx, span := tracing.Start(ctx, "orders.reject", attribute.String("order", address.String()))
	defer func() {
		tracing.End(span, err)
		s.countTransition(metrics.ActionReject, err)
	}()

	reason = strings.TrimSpace(reason)
	o, err = s.Sync(ctx, address)
	if err != nil {
		return nil, err
	}
	if err = o.CanReject(reason); err != nil {
		return nil, err
	}
	if err = s.checkNoDelivery(ctx, o); err != nil {
		return nil, err
	}

	sig, err := s.ledger.Reject(ctx, o, reason)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeAlreadyFinalized) {
			_, _ = s.refresh(ctx, address, nil)
		}
		return nil, err
	}

	o, err = s.refresh(ctx, address, nil)
	if err != nil {
		return nil, err
	}
	s.metrics.AddRefunded(o.TotalEscrowed)
	s.logAudit(ctx, audit.EventOrderRejected, o, sig, "rejected", reason)
	return o, nil
}

// checkNoDelivery fails when a distribution for o holds its key or finished.
// A pending order with a completed distribution needs approving, not a refund.
func (s *Service) checkNoDelivery(ctx context.Context, o *models.Order) error {
	if s.distributions == nil {
		return nil
	}
	entry, err := s.distributions.Get(ctx, o.Address.String())
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read distribution journal")
	}
	switch {
	case entry.State == distribution.StateCompleted:
		return dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("tokens for order %s were already delivered; approve it instead", o.Address))
	case entry.State == distribution.StatePending,
		entry.LeaseHeld(time.Now()):
		return dErrors.New(dErrors.CodeDistributionInFlight,
			fmt.Sprintf("a distribution for order %s is in flight", o.Address))
	}
	return nil
}

// Get serves the order from the index, falling back to the ledger for
// orders the index has not seen.
func (s *Service) Get(ctx context.Context, address solana.PublicKey) (*models.Order, error) {
	o, err := s.store.FindByAddress(ctx, address)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read order index")
	}
	return s.Sync(ctx, address)
}

// List returns indexed orders, newest first.
func (s *Service) List(ctx context.Context, filter store.Filter) ([]*models.Order, error) {
	orders, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list orders")
	}
	return orders, nil
}

// Sync re-reads the ledger record and rewrites the index entry.
func (s *Service) Sync(ctx context.Context, address solana.PublicKey) (*models.Order, error) {
	return s.refresh(ctx, address, nil)
}

// refresh reads the authoritative record and indexes it. The approval
// signature is kept off-chain, so it comes from approvalTx or the index.
// Index write failures are logged; the ledger read already succeeded.
func (s *Service) refresh(ctx context.Context, address solana.PublicKey, approvalTx *solana.Signature) (*models.Order, error) {
	o, err := s.ledger.Fetch(ctx, address)
	if err != nil {
		return nil, err
	}
	switch {
	case approvalTx != nil:
		o.ApprovalTx = approvalTx
	case o.ApprovalTx == nil:
		if prior, err := s.store.FindByAddress(ctx, address); err == nil {
			o.ApprovalTx = prior.ApprovalTx
		}
	}
	if err := s.store.Save(ctx, o); err != nil {
		s.logger.ErrorContext(ctx, "order index write failed",
			"order", address.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return o, nil
}

func (s *Service) countTransition(action string, err error) {
	switch {
	case err == nil:
		s.metrics.IncTransition(action, metrics.OutcomeSucceeded)
	case dErrors.HasCode(err, dErrors.CodeAlreadyFinalized):
		s.metrics.IncTransition(action, metrics.OutcomeAlreadyFinalized)
	default:
		s.metrics.IncTransition(action, metrics.OutcomeFailed)
	}
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, o *models.Order, sig solana.Signature, decision, reason string) {
	requestID := requestcontext.RequestID(ctx)
	attrs := []any{
		"event", string(event),
		"log_type", "audit",
		"order", o.Address.String(),
		"buyer", o.Buyer.String(),
		"mint", o.Mint.String(),
		"quantity", o.Quantity,
		"total_escrowed", o.TotalEscrowed,
		"signature", sig.String(),
		"request_id", requestID,
	}
	if o.ApprovalTx != nil {
		attrs = append(attrs, "distribution_signature", o.ApprovalTx.String())
	}
	s.logger.InfoContext(ctx, string(event), attrs...)
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		Subject:   o.Buyer.String(),
		Action:    string(event),
		Resource:  o.Address.String(),
		Decision:  decision,
		Reason:    reason,
		Signature: sig.String(),
		RequestID: requestID,
		ActorID:   requestcontext.Actor(ctx),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "event", string(event), "error", err)
	}
}

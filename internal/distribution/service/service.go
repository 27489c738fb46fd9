package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel/attribute"

	"srwa/internal/chain"
	"srwa/internal/distribution/metrics"
	"srwa/internal/distribution/models"
	hook "srwa/internal/hook/models"
	"srwa/internal/platform/tracing"
	dErrors "srwa/pkg/domain-errors"
	"srwa/pkg/platform/audit"
	"srwa/pkg/platform/sentinel"
	"srwa/pkg/requestcontext"
)

// Registrar guarantees a wallet may send or receive the restricted token.
type Registrar interface {
	EnsureRegistered(ctx context.Context, subject solana.PublicKey) error
}

// HookResolver reads mint state and completes transfer instructions.
type HookResolver interface {
	MintState(ctx context.Context, mint solana.PublicKey) (*hook.MintState, error)
	Resolve(ctx context.Context, ix *solana.GenericInstruction) (*solana.GenericInstruction, error)
}

// Journal records distribution progress per idempotency key. Begin returns a
// nil lease when the key is not available; writes under a lease that was
// taken over fail with sentinel.ErrConflict.
type Journal interface {
	Begin(ctx context.Context, key string, ttl time.Duration) (prior *models.Entry, lease *models.Lease, err error)
	Renew(ctx context.Context, lease *models.Lease, ttl time.Duration) error
	MarkPending(ctx context.Context, lease *models.Lease, pending models.Pending) error
	Complete(ctx context.Context, lease *models.Lease, receipt *models.Receipt) error
	Release(ctx context.Context, lease *models.Lease) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Executor moves restricted tokens from the treasury wallet to recipients.
type Executor struct {
	chain          chain.Client
	treasury       solana.PublicKey
	registrar      Registrar
	resolver       HookResolver
	journal        Journal
	leaseTTL       time.Duration
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(e *Executor) {
		e.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithLeaseTTL bounds how long an in-flight distribution blocks its key. The
// lease is renewed right before the transfer is sent, so ttl must outlast one
// confirmation wait.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(e *Executor) {
		e.leaseTTL = ttl
	}
}

// New constructs an Executor. treasury holds the tokens and signs every transfer.
func New(client chain.Client, treasury solana.PublicKey, registrar Registrar, resolver HookResolver, journal Journal, opts ...Option) *Executor {
	e := &Executor{
		chain:     client,
		treasury:  treasury,
		registrar: registrar,
		resolver:  resolver,
		journal:   journal,
		leaseTTL:  3 * time.Minute,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Treasury is the sending wallet.
func (e *Executor) Treasury() solana.PublicKey { return e.treasury }

// Distribute delivers req.Amount tokens to req.Recipient at most once per key.
// A completed key returns its earlier receipt with Replayed set.
func (e *Executor) Distribute(ctx context.Context, req models.Request) (receipt *models.Receipt, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "distribution.distribute",
		attribute.String("mint", req.Mint.String()),
		attribute.String("recipient", req.Recipient.String()),
	)
	defer func() {
		tracing.End(span, err)
		e.metrics.ObserveDuration(start)
	}()

	state, err := e.resolver.MintState(ctx, req.Mint)
	if err != nil {
		return nil, err
	}
	amount, err := models.ParseAmount(req.Amount, state.Decimals)
	if err != nil {
		return nil, err
	}
	key := req.Key
	if key == "" {
		key = models.DefaultKey(req.Mint, req.Recipient, amount)
	}
	span.SetAttributes(attribute.String("key", key), attribute.Int64("amount", int64(amount)))

	prior, lease, err := e.journal.Begin(ctx, key, e.leaseTTL)
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			e.metrics.IncOutcome(metrics.OutcomeInFlight)
			return nil, dErrors.Wrap(err, dErrors.CodeDistributionInFlight,
				fmt.Sprintf("distribution %s is being processed elsewhere", key))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open distribution journal entry")
	}
	if lease == nil {
		return e.settled(ctx, key, prior)
	}

	intent := transfer{key: key, lease: lease, mint: req.Mint, recipient: req.Recipient, amount: amount, decimals: state.Decimals}
	if prior != nil && prior.Signature != (solana.Signature{}) {
		done, err := e.recheck(ctx, intent, models.Pending{
			Signature:            prior.Signature,
			LastValidBlockHeight: prior.LastValidBlockHeight,
		})
		if done != nil || err != nil {
			return done, err
		}
	}

	sig, err := e.execute(ctx, intent, state)
	if err != nil {
		e.fail(ctx, intent, err)
		return nil, err
	}
	return e.complete(ctx, intent, sig)
}

type transfer struct {
	key       string
	lease     *models.Lease
	mint      solana.PublicKey
	recipient solana.PublicKey
	amount    uint64
	decimals  uint8
}

// settled answers a key whose lease could not be taken.
func (e *Executor) settled(ctx context.Context, key string, prior *models.Entry) (*models.Receipt, error) {
	if prior != nil && prior.State == models.StateCompleted && prior.Receipt != nil {
		e.metrics.IncOutcome(metrics.OutcomeReplayed)
		e.logger.InfoContext(ctx, "distribution replayed",
			"key", key,
			"signature", prior.Receipt.Signature.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		replay := *prior.Receipt
		replay.Replayed = true
		return &replay, nil
	}
	e.metrics.IncOutcome(metrics.OutcomeInFlight)
	return nil, dErrors.New(dErrors.CodeDistributionInFlight,
		fmt.Sprintf("distribution %s is already in flight", key))
}

// recheck resolves a previously unconfirmed signature before any retry. It
// returns a receipt when that transfer landed, an error when its outcome is
// still open, and (nil, nil) when a retry is safe: the transfer failed, or
// its blockhash expired without the cluster ever seeing it.
func (e *Executor) recheck(ctx context.Context, t transfer, p models.Pending) (*models.Receipt, error) {
	// Height first: a signature still unknown after the height passed its
	// blockhash expiry can no longer land.
	height, err := e.chain.BlockHeight(ctx)
	if err != nil {
		e.keepPending(ctx, t, p)
		return nil, dErrors.Wrap(err, dErrors.CodeSubmissionFailed,
			fmt.Sprintf("could not read block height to re-check %s", p.Signature))
	}
	status, err := e.chain.SignatureStatus(ctx, p.Signature)
	if err != nil {
		e.keepPending(ctx, t, p)
		return nil, dErrors.Wrap(err, dErrors.CodeSubmissionFailed,
			fmt.Sprintf("could not re-check pending signature %s", p.Signature))
	}
	expired := chain.Expired(p.LastValidBlockHeight, height)
	e.logger.InfoContext(ctx, "re-checked pending distribution",
		"key", t.key,
		"signature", p.Signature.String(),
		"status", status.String(),
		"block_height", height,
		"last_valid_block_height", p.LastValidBlockHeight,
	)
	switch {
	case status == chain.StatusConfirmed:
		return e.complete(ctx, t, p.Signature)
	case status == chain.StatusFailed:
		return nil, nil
	case status == chain.StatusUnknown && expired:
		return nil, nil
	}
	e.keepPending(ctx, t, p)
	e.metrics.IncOutcome(metrics.OutcomePending)
	return nil, dErrors.New(dErrors.CodeConfirmationTimeout,
		fmt.Sprintf("distribution %s still awaiting confirmation of %s (status %s, block height %d of %d)",
			t.key, p.Signature, status, height, p.LastValidBlockHeight))
}

// keepPending hands the key back as Pending so the next call re-checks p again.
func (e *Executor) keepPending(ctx context.Context, t transfer, p models.Pending) {
	if err := e.journal.MarkPending(ctx, t.lease, p); err != nil {
		e.logger.ErrorContext(ctx, "failed to record pending distribution",
			"key", t.key,
			"signature", p.Signature.String(),
			"error", err,
		)
	}
}

func (e *Executor) execute(ctx context.Context, t transfer, state *hook.MintState) (solana.Signature, error) {
	source, err := chain.AssociatedTokenAddress(e.treasury, t.mint)
	if err != nil {
		return solana.Signature{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive treasury token account")
	}
	destination, err := chain.AssociatedTokenAddress(t.recipient, t.mint)
	if err != nil {
		return solana.Signature{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive recipient token account")
	}

	if err := e.checkSource(ctx, source, t); err != nil {
		return solana.Signature{}, err
	}
	if err := e.registrar.EnsureRegistered(ctx, e.treasury); err != nil {
		return solana.Signature{}, err
	}
	if err := e.registrar.EnsureRegistered(ctx, t.recipient); err != nil {
		return solana.Signature{}, err
	}
	if err := e.ensureDestination(ctx, destination, t); err != nil {
		return solana.Signature{}, err
	}

	ix, err := e.resolver.Resolve(ctx, chain.NewTransferChecked(source, t.mint, destination, e.treasury, t.amount, t.decimals))
	if err != nil {
		return solana.Signature{}, err
	}
	// Registration and account creation may have used most of the lease.
	if err := e.journal.Renew(ctx, t.lease, e.leaseTTL); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return solana.Signature{}, dErrors.Wrap(err, dErrors.CodeDistributionInFlight,
				fmt.Sprintf("distribution %s was taken over before its transfer", t.key))
		}
		return solana.Signature{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to renew distribution lease")
	}
	sig, err := e.chain.Submit(ctx, e.treasury, ix)
	if err != nil {
		return solana.Signature{}, chain.SubmitError(err, state.HookProgram, "transfer")
	}
	return sig, nil
}

func (e *Executor) checkSource(ctx context.Context, source solana.PublicKey, t transfer) error {
	acct, err := chain.GetAccountIfExists(ctx, e.chain, source)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read treasury token account")
	}
	if acct == nil {
		return dErrors.New(dErrors.CodeNoSourceAccount,
			fmt.Sprintf("treasury %s has no token account for mint %s", e.treasury, t.mint))
	}
	balance, err := chain.ParseTokenAccount(acct.Data)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode treasury token account")
	}
	if balance.Amount < t.amount {
		return dErrors.New(dErrors.CodeInsufficientBalance,
			fmt.Sprintf("treasury holds %d base units, distribution needs %d", balance.Amount, t.amount))
	}
	return nil
}

// ensureDestination creates the recipient's token account in its own
// confirmed transaction.
func (e *Executor) ensureDestination(ctx context.Context, destination solana.PublicKey, t transfer) error {
	acct, err := chain.GetAccountIfExists(ctx, e.chain, destination)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read recipient token account")
	}
	if acct != nil {
		return nil
	}
	ix, err := chain.NewCreateAssociatedTokenAccount(e.treasury, t.recipient, t.mint)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build token account instruction")
	}
	sig, err := e.chain.Submit(ctx, e.treasury, ix)
	var pending *chain.PendingError
	if errors.As(err, &pending) {
		// Creation is idempotent, so an unconfirmed attempt only matters if
		// the account is still missing. Its signature must not reach the journal.
		if created, _ := chain.GetAccountIfExists(ctx, e.chain, destination); created != nil {
			return nil
		}
		return dErrors.New(dErrors.CodeConfirmationTimeout,
			fmt.Sprintf("recipient token account creation %s unconfirmed, retry the distribution", pending.Signature))
	}
	if err != nil {
		return chain.SubmitError(err, solana.PublicKey{}, "create recipient token account")
	}
	e.logger.InfoContext(ctx, "created recipient token account",
		"recipient", t.recipient.String(),
		"token_account", destination.String(),
		"signature", sig.String(),
	)
	return nil
}

// fail settles the journal after a failed attempt: an unconfirmed transfer
// keeps its signature for the next call to re-check, anything else frees the key.
func (e *Executor) fail(ctx context.Context, t transfer, err error) {
	var pending *chain.PendingError
	if errors.As(err, &pending) {
		e.keepPending(ctx, t, models.Pending{Signature: pending.Signature, LastValidBlockHeight: pending.LastValidBlockHeight})
		e.metrics.IncOutcome(metrics.OutcomePending)
		e.audit(ctx, audit.EventDistributionPending, t, pending.Signature, "pending", err.Error())
		return
	}
	if jerr := e.journal.Release(ctx, t.lease); jerr != nil {
		e.logger.ErrorContext(ctx, "failed to release distribution lease", "key", t.key, "error", jerr)
	}
	e.metrics.IncOutcome(metrics.OutcomeFailed)
	e.logger.WarnContext(ctx, "distribution failed",
		"key", t.key,
		"mint", t.mint.String(),
		"recipient", t.recipient.String(),
		"code", string(dErrors.CodeOf(err)),
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	if dErrors.Is(err, dErrors.CodeComplianceRejected) {
		e.audit(ctx, audit.EventDistributionRejected, t, solana.Signature{}, "rejected", err.Error())
	}
}

func (e *Executor) complete(ctx context.Context, t transfer, sig solana.Signature) (*models.Receipt, error) {
	receipt := &models.Receipt{
		Key:         t.key,
		Mint:        t.mint,
		Recipient:   t.recipient,
		Amount:      t.amount,
		Decimals:    t.decimals,
		Signature:   sig,
		CompletedAt: requestcontext.Now(ctx).UTC(),
	}
	if err := e.journal.Complete(ctx, t.lease, receipt); err != nil {
		e.logger.ErrorContext(ctx, "failed to record completed distribution",
			"key", t.key,
			"signature", sig.String(),
			"error", err,
		)
	}
	e.metrics.IncOutcome(metrics.OutcomeCompleted)
	e.metrics.AddDelivered(t.mint.String(), t.amount)
	e.audit(ctx, audit.EventDistributionCompleted, t, sig, "delivered", "")
	return receipt, nil
}

func (e *Executor) audit(ctx context.Context, event audit.AuditEvent, t transfer, sig solana.Signature, decision, reason string) {
	requestID := requestcontext.RequestID(ctx)
	e.logger.InfoContext(ctx, string(event),
		"event", string(event),
		"log_type", "audit",
		"key", t.key,
		"mint", t.mint.String(),
		"recipient", t.recipient.String(),
		"amount", t.amount,
		"signature", sig.String(),
		"request_id", requestID,
	)
	if e.auditPublisher == nil {
		return
	}
	emit := audit.Event{
		Subject:   t.recipient.String(),
		Action:    string(event),
		Resource:  t.mint.String(),
		Decision:  decision,
		Reason:    reason,
		RequestID: requestID,
		ActorID:   requestcontext.Actor(ctx),
	}
	if sig != (solana.Signature{}) {
		emit.Signature = sig.String()
	}
	if err := e.auditPublisher.Emit(ctx, emit); err != nil {
		e.logger.ErrorContext(ctx, "audit emit failed", "event", string(event), "error", err)
	}
}

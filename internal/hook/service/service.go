package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"srwa/internal/chain"
	"srwa/internal/hook/metalist"
	"srwa/internal/hook/metrics"
	"srwa/internal/hook/models"
	"srwa/internal/platform/tracing"
	dErrors "srwa/pkg/domain-errors"
	"srwa/pkg/platform/audit"
	"srwa/pkg/platform/sentinel"
	"srwa/pkg/requestcontext"
)

// Cache stores mint states. FindMintState returns sentinel.ErrNotFound on a miss.
type Cache interface {
	FindMintState(ctx context.Context, mint solana.PublicKey) (*models.MintState, error)
	SaveMintState(ctx context.Context, state *models.MintState) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, base audit.Event) error
}

// Resolver completes Token-2022 transfer_checked instructions with the
// accounts the mint's transfer hook needs.
type Resolver struct {
	chain          chain.Client
	payer          solana.PublicKey
	cache          Cache
	provisioning   singleflight.Group
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithCache enables mint state caching.
func WithCache(cache Cache) Option {
	return func(r *Resolver) {
		r.cache = cache
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(r *Resolver) {
		r.auditPublisher = publisher
	}
}

// New constructs a Resolver. payer signs and funds meta list provisioning.
func New(client chain.Client, payer solana.PublicKey, opts ...Option) *Resolver {
	r := &Resolver{
		chain:  client,
		payer:  payer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MintState reads the hook-relevant state of mint. A state is cached only
// when it can no longer change: no hook, or a hook whose meta list exists.
func (r *Resolver) MintState(ctx context.Context, mint solana.PublicKey) (*models.MintState, error) {
	if r.cache != nil {
		state, err := r.cache.FindMintState(ctx, mint)
		if err == nil {
			r.metrics.IncCache(true)
			return state, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			r.logger.WarnContext(ctx, "mint state cache read failed", "mint", mint.String(), "error", err)
		}
		r.metrics.IncCache(false)
	}

	state, err := r.readMintState(ctx, mint)
	if err != nil {
		return nil, err
	}
	r.remember(ctx, state)
	return state, nil
}

func (r *Resolver) readMintState(ctx context.Context, mint solana.PublicKey) (*models.MintState, error) {
	acct, err := chain.GetAccountIfExists(ctx, r.chain, mint)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read mint")
	}
	if acct == nil {
		return nil, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, fmt.Sprintf("mint %s not found", mint))
	}
	if !acct.Owner.Equals(chain.Token2022ProgramID) {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("mint %s is not a Token-2022 mint", mint))
	}
	parsed, err := chain.ParseMint(acct.Data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to decode mint %s", mint))
	}

	state := &models.MintState{Mint: mint, Decimals: parsed.Decimals}
	if parsed.TransferHook == nil {
		return state, nil
	}
	state.HasHook = true
	state.HookProgram = parsed.TransferHook.Program
	if state.MetaListAddress, err = models.MetaListAddress(state.HookProgram, mint); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive meta list address")
	}
	list, err := chain.GetAccountIfExists(ctx, r.chain, state.MetaListAddress)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read meta list")
	}
	state.MetaListInitialized = list != nil
	return state, nil
}

func (r *Resolver) remember(ctx context.Context, state *models.MintState) {
	if r.cache == nil || (state.HasHook && !state.MetaListInitialized) {
		return
	}
	if err := r.cache.SaveMintState(ctx, state); err != nil {
		r.logger.WarnContext(ctx, "mint state cache write failed", "mint", state.Mint.String(), "error", err)
	}
}

// EnsureMetaList provisions the meta list of a hook mint when it is missing.
// Concurrent calls for one mint share a single submission.
func (r *Resolver) EnsureMetaList(ctx context.Context, mint solana.PublicKey) (*models.MintState, error) {
	state, err := r.MintState(ctx, mint)
	if err != nil {
		return nil, err
	}
	if !state.HasHook || state.MetaListInitialized {
		return state, nil
	}

	v, err, _ := r.provisioning.Do(mint.String(), func() (any, error) {
		return r.provision(context.WithoutCancel(ctx), state)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.MintState), nil
}

func (r *Resolver) provision(ctx context.Context, state *models.MintState) (*models.MintState, error) {
	ctx, span := tracing.Start(ctx, "hook.provision_meta_list",
		attribute.String("mint", state.Mint.String()),
		attribute.String("hook_program", state.HookProgram.String()),
	)
	var err error
	defer func() { tracing.End(span, err) }()

	// Another caller may have finished while this one waited on the read.
	if fresh, readErr := r.readMintState(ctx, state.Mint); readErr == nil && fresh.MetaListInitialized {
		r.remember(ctx, fresh)
		return fresh, nil
	}

	ix, err := models.NewInitializeMetaListInstruction(state.HookProgram, r.payer, state.Mint)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to build meta list instruction")
		return nil, err
	}
	sig, submitErr := r.chain.Submit(ctx, r.payer, ix)

	// A lost race with another process fails on-chain; the account is what matters.
	fresh, err := r.readMintState(ctx, state.Mint)
	if err != nil {
		return nil, err
	}
	if !fresh.MetaListInitialized {
		r.metrics.IncProvisioning(metrics.OutcomeFailed)
		r.logger.ErrorContext(ctx, "meta list provisioning failed",
			"mint", state.Mint.String(),
			"error", submitErr,
			"request_id", requestcontext.RequestID(ctx),
		)
		msg := fmt.Sprintf("extra account meta list for mint %s is unavailable", state.Mint)
		if submitErr != nil {
			err = dErrors.Wrap(submitErr, dErrors.CodeHookMetadataUnavailable, msg)
		} else {
			err = dErrors.New(dErrors.CodeHookMetadataUnavailable, msg)
		}
		return nil, err
	}

	r.remember(ctx, fresh)
	if submitErr != nil {
		r.metrics.IncProvisioning(metrics.OutcomeConcurrent)
		return fresh, nil
	}
	r.metrics.IncProvisioning(metrics.OutcomeProvisioned)
	r.logger.InfoContext(ctx, string(audit.EventHookProvisioned),
		"event", string(audit.EventHookProvisioned),
		"log_type", "audit",
		"mint", state.Mint.String(),
		"meta_list", fresh.MetaListAddress.String(),
		"signature", sig.String(),
	)
	if r.auditPublisher != nil {
		emitErr := r.auditPublisher.Emit(ctx, audit.Event{
			Subject:   state.Mint.String(),
			Action:    string(audit.EventHookProvisioned),
			Resource:  fresh.MetaListAddress.String(),
			Signature: sig.String(),
			RequestID: requestcontext.RequestID(ctx),
			ActorID:   requestcontext.Actor(ctx),
		})
		if emitErr != nil {
			r.logger.WarnContext(ctx, "audit emit failed", "event", string(audit.EventHookProvisioned), "error", emitErr)
		}
	}
	return fresh, nil
}

// Resolve returns ix with the hook program, the meta list and every resolved
// extra account appended after the four base accounts, in that order. A mint
// without a hook gets ix back unchanged.
func (r *Resolver) Resolve(ctx context.Context, ix *solana.GenericInstruction) (out *solana.GenericInstruction, err error) {
	if err := validateTransfer(ix); err != nil {
		return nil, err
	}
	mint := ix.AccountValues[1].PublicKey

	ctx, span := tracing.Start(ctx, "hook.resolve", attribute.String("mint", mint.String()))
	defer func() {
		tracing.End(span, err)
		if err != nil {
			r.metrics.IncResolution(metrics.OutcomeFailed)
		}
	}()

	state, err := r.EnsureMetaList(ctx, mint)
	if err != nil {
		return nil, err
	}
	if !state.HasHook {
		r.metrics.IncResolution(metrics.OutcomeNoHook)
		return ix, nil
	}

	listAcct, err := chain.GetAccountIfExists(ctx, r.chain, state.MetaListAddress)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read meta list")
	}
	if listAcct == nil {
		return nil, dErrors.New(dErrors.CodeHookMetadataUnavailable,
			fmt.Sprintf("extra account meta list %s is missing", state.MetaListAddress))
	}
	list, err := metalist.Parse(listAcct.Data)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExtraAccountResolutionFailed,
			fmt.Sprintf("meta list %s is malformed", state.MetaListAddress))
	}

	amount, _, _ := chain.DecodeTransferChecked(ix.DataBytes)
	base := ix.AccountValues[:4]
	execAccounts := append(append([]*solana.AccountMeta{}, base...), solana.Meta(state.MetaListAddress))
	extras, err := metalist.Resolve(list, state.HookProgram, execAccounts, metalist.ExecuteData(amount), r.accountData(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeExtraAccountResolutionFailed,
			fmt.Sprintf("could not resolve transfer hook accounts for mint %s", mint))
	}

	accounts := make(solana.AccountMetaSlice, 0, len(base)+2+len(extras))
	accounts = append(accounts, base...)
	accounts = append(accounts, solana.Meta(state.HookProgram), solana.Meta(state.MetaListAddress))
	accounts = append(accounts, extras...)

	r.metrics.IncResolution(metrics.OutcomeResolved)
	r.metrics.ObserveExtraAccounts(len(extras))
	span.SetAttributes(attribute.Int("extra_accounts", len(extras)))
	return solana.NewInstruction(ix.ProgID, accounts, ix.DataBytes), nil
}

func (r *Resolver) accountData(ctx context.Context) metalist.AccountDataFunc {
	return func(key solana.PublicKey) ([]byte, error) {
		acct, err := r.chain.GetAccount(ctx, key)
		if err != nil {
			return nil, err
		}
		return acct.Data, nil
	}
}

func validateTransfer(ix *solana.GenericInstruction) error {
	if ix == nil || !ix.ProgID.Equals(chain.Token2022ProgramID) {
		return dErrors.New(dErrors.CodeValidation, "instruction is not a Token-2022 instruction")
	}
	if _, _, ok := chain.DecodeTransferChecked(ix.DataBytes); !ok {
		return dErrors.New(dErrors.CodeValidation, "instruction is not transfer_checked")
	}
	if len(ix.AccountValues) != 4 {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("transfer_checked must carry exactly 4 accounts, got %d", len(ix.AccountValues)))
	}
	return nil
}

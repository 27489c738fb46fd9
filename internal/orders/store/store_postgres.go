package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"srwa/internal/orders/models"
	"srwa/pkg/platform/sentinel"
)

// PostgresStore indexes orders in the orders table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orderColumns = `address, buyer, mint, quantity, unit_price, total_escrowed, status, nonce,
	processed_by, approval_tx, rejection_reason, created_at, updated_at`

// Save upserts o. An approval signature already indexed is kept when o has none.
func (s *PostgresStore) Save(ctx context.Context, o *models.Order) error {
	if o == nil {
		return fmt.Errorf("order is required")
	}
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (address) DO UPDATE SET
			status = EXCLUDED.status,
			processed_by = EXCLUDED.processed_by,
			approval_tx = COALESCE(EXCLUDED.approval_tx, orders.approval_tx),
			rejection_reason = EXCLUDED.rejection_reason,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		o.Address.String(),
		o.Buyer.String(),
		o.Mint.String(),
		int64(o.Quantity),
		int64(o.UnitPrice),
		int64(o.TotalEscrowed),
		o.Status.String(),
		o.Nonce,
		nullableKey(o.ProcessedBy),
		nullableSignature(o.ApprovalTx),
		o.RejectionReason,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByAddress(ctx context.Context, address solana.PublicKey) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE address = $1`
	o, err := scanOrder(s.db.QueryRowContext(ctx, query, address.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", address, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	return o, nil
}

// List returns matching orders, newest first.
func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*models.Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != nil {
		add("status = $%d", filter.Status.String())
	}
	if filter.Buyer != nil {
		add("buyer = $%d", filter.Buyer.String())
	}
	if filter.Mint != nil {
		add("mint = $%d", filter.Mint.String())
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, filter.limit())
	query += fmt.Sprintf(` ORDER BY created_at DESC, address LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*models.Order, error) {
	var (
		address, buyer, mint, status string
		quantity, price, total       int64
		processedBy, approvalTx      sql.NullString
		o                            models.Order
	)
	err := row.Scan(&address, &buyer, &mint, &quantity, &price, &total, &status, &o.Nonce,
		&processedBy, &approvalTx, &o.RejectionReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if o.Address, err = solana.PublicKeyFromBase58(address); err != nil {
		return nil, err
	}
	if o.Buyer, err = solana.PublicKeyFromBase58(buyer); err != nil {
		return nil, err
	}
	if o.Mint, err = solana.PublicKeyFromBase58(mint); err != nil {
		return nil, err
	}
	if o.Status, err = models.ParseStatus(status); err != nil {
		return nil, err
	}
	o.Quantity, o.UnitPrice, o.TotalEscrowed = uint64(quantity), uint64(price), uint64(total)
	if processedBy.Valid {
		pk, err := solana.PublicKeyFromBase58(processedBy.String)
		if err != nil {
			return nil, err
		}
		o.ProcessedBy = &pk
	}
	if approvalTx.Valid {
		sig, err := solana.SignatureFromBase58(approvalTx.String)
		if err != nil {
			return nil, err
		}
		o.ApprovalTx = &sig
	}
	o.CreatedAt, o.UpdatedAt = o.CreatedAt.UTC(), o.UpdatedAt.UTC()
	return &o, nil
}

func nullableKey(pk *solana.PublicKey) sql.NullString {
	if pk == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: pk.String(), Valid: true}
}

func nullableSignature(sig *solana.Signature) sql.NullString {
	if sig == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: sig.String(), Valid: true}
}

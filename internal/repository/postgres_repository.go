package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
)

// PaymentSchema stores each payment as one JSONB document next to the
// columns needed for lookups and the version check.
const PaymentSchema = `
CREATE TABLE IF NOT EXISTS payments (
    id VARCHAR(36) PRIMARY KEY,
    version BIGINT NOT NULL,
    interface_name VARCHAR(50) NOT NULL,
    interface_id VARCHAR(100) NOT NULL DEFAULT '',
    document JSONB NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_interface
    ON payments (interface_name, interface_id)
    WHERE interface_id <> '';
`

const uniqueViolation = "23505"

type PostgresPaymentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresPaymentRepository(db *sql.DB) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db, now: time.Now}
}

func (r *PostgresPaymentRepository) Get(ctx context.Context, id string) (*models.Payment, error) {
	query := `SELECT version, document FROM payments WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresPaymentRepository) FindByInterfaceID(ctx context.Context, interfaceName, interfaceID string) (*models.Payment, error) {
	if interfaceID == "" {
		return nil, ErrNotFound
	}
	query := `
		SELECT version, document FROM payments
		WHERE interface_name = $1 AND interface_id = $2
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, interfaceName, interfaceID))
}

func (r *PostgresPaymentRepository) Create(ctx context.Context, draft *models.PaymentDraft) (*models.Payment, error) {
	payment := newPayment(draft, r.now())

	doc, err := json.Marshal(payment)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment: %w", err)
	}

	query := `
		INSERT INTO payments (id, version, interface_name, interface_id, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.db.ExecContext(ctx, query,
		payment.ID,
		payment.Version,
		payment.InterfaceName,
		payment.InterfaceID,
		doc,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	return payment, nil
}

// Update reads the current document, applies the actions in memory and writes
// back guarded by the version column. Zero affected rows means someone else
// wrote in between.
func (r *PostgresPaymentRepository) Update(ctx context.Context, id string, version int64, actions []models.UpdateAction) (*models.Payment, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != version {
		return nil, ErrVersionConflict
	}

	next, err := nextVersion(current, actions, r.now())
	if err != nil {
		return nil, err
	}

	doc, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment: %w", err)
	}

	query := `
		UPDATE payments
		SET version = $1, interface_id = $2, document = $3, updated_at = $4
		WHERE id = $5 AND version = $6
	`
	res, err := r.db.ExecContext(ctx, query,
		next.Version,
		next.InterfaceID,
		doc,
		next.UpdatedAt,
		id,
		version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return nil, ErrVersionConflict
	}

	return next, nil
}

func (r *PostgresPaymentRepository) scanOne(row *sql.Row) (*models.Payment, error) {
	var (
		version int64
		doc     []byte
	)
	if err := row.Scan(&version, &doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	payment := &models.Payment{}
	if err := json.Unmarshal(doc, payment); err != nil {
		return nil, fmt.Errorf("failed to decode payment: %w", err)
	}
	payment.Version = version
	return payment, nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
)

var (
	// ErrNotFound is returned when no payment matches the lookup.
	ErrNotFound = errors.New("payment not found")
	// ErrVersionConflict is returned by Update when the stored version differs
	// from the version the actions were built against.
	ErrVersionConflict = errors.New("payment version conflict")
	// ErrAlreadyExists is returned by Create when another payment already holds
	// the same interface id.
	ErrAlreadyExists = errors.New("payment already exists")
)

// PaymentRepository is the versioned ledger. Update applies the whole batch
// or nothing.
type PaymentRepository interface {
	Get(ctx context.Context, id string) (*models.Payment, error)
	FindByInterfaceID(ctx context.Context, interfaceName, interfaceID string) (*models.Payment, error)
	Create(ctx context.Context, draft *models.PaymentDraft) (*models.Payment, error)
	Update(ctx context.Context, id string, version int64, actions []models.UpdateAction) (*models.Payment, error)
}

// newPayment builds the first version of a payment from a draft. Shared by
// every backend so that they assign ids and versions the same way.
func newPayment(draft *models.PaymentDraft, now time.Time) *models.Payment {
	transactions := make([]models.Transaction, len(draft.Transactions))
	for i, tx := range draft.Transactions {
		if tx.ID == "" {
			tx.ID = uuid.New().String()
		}
		if tx.State == "" {
			tx.State = models.TransactionStatePending
		}
		if tx.Timestamp.IsZero() {
			tx.Timestamp = now
		}
		transactions[i] = tx
	}

	interfaceName := draft.InterfaceName
	if interfaceName == "" {
		interfaceName = models.InterfaceNamePayone
	}

	var fields map[string]string
	if len(draft.CustomFields) > 0 {
		fields = make(map[string]string, len(draft.CustomFields))
		for k, v := range draft.CustomFields {
			fields[k] = v
		}
	}

	return &models.Payment{
		ID:            uuid.New().String(),
		Version:       1,
		Reference:     draft.Reference,
		Method:        draft.Method,
		InterfaceName: interfaceName,
		InterfaceID:   draft.InterfaceID,
		AmountPlanned: draft.AmountPlanned,
		Transactions:  transactions,
		Interactions:  []models.InteractionEntry{},
		CustomFields:  fields,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// nextVersion applies actions on top of current and stamps the new version.
func nextVersion(current *models.Payment, actions []models.UpdateAction, now time.Time) (*models.Payment, error) {
	next, err := models.ApplyActions(current, actions)
	if err != nil {
		return nil, err
	}
	next.Version = current.Version + 1
	next.UpdatedAt = now
	return next, nil
}

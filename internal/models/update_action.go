package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrTransactionNotFound is returned when an action references a transaction
// the payment does not have.
var ErrTransactionNotFound = errors.New("transaction not found")

// UpdateAction is one element of the closed set of changes the ledger
// accepts. The unexported apply method keeps the set closed to this package.
type UpdateAction interface {
	ActionName() string
	apply(p *Payment) error
}

type AddTransaction struct {
	Transaction Transaction
}

type ChangeTransactionState struct {
	TransactionID string
	State         TransactionState
}

type ChangeTransactionInteractionID struct {
	TransactionID string
	InteractionID string
}

type ChangeTransactionTimestamp struct {
	TransactionID string
	Timestamp     time.Time
}

type AddInterfaceInteraction struct {
	Entry InteractionEntry
}

type SetAuthorizedAmount struct {
	Amount Money
}

type SetPaidAmount struct {
	Amount Money
}

type SetExternalInterfaceID struct {
	InterfaceID string
}

type SetCustomField struct {
	Name  string
	Value string
}

func (AddTransaction) ActionName() string                 { return "addTransaction" }
func (ChangeTransactionState) ActionName() string         { return "changeTransactionState" }
func (ChangeTransactionInteractionID) ActionName() string { return "changeTransactionInteractionId" }
func (ChangeTransactionTimestamp) ActionName() string     { return "changeTransactionTimestamp" }
func (AddInterfaceInteraction) ActionName() string        { return "addInterfaceInteraction" }
func (SetAuthorizedAmount) ActionName() string            { return "setAuthorizedAmount" }
func (SetPaidAmount) ActionName() string                  { return "setPaidAmount" }
func (SetExternalInterfaceID) ActionName() string         { return "setInterfaceId" }
func (SetCustomField) ActionName() string                 { return "setCustomField" }

func (a AddTransaction) apply(p *Payment) error {
	if _, exists := p.Transaction(a.Transaction.ID); exists {
		return fmt.Errorf("transaction %s already exists", a.Transaction.ID)
	}
	p.Transactions = append(p.Transactions, a.Transaction)
	return nil
}

func (a ChangeTransactionState) apply(p *Payment) error {
	return p.mutateTransaction(a.TransactionID, func(tx *Transaction) {
		tx.State = a.State
	})
}

func (a ChangeTransactionInteractionID) apply(p *Payment) error {
	return p.mutateTransaction(a.TransactionID, func(tx *Transaction) {
		tx.InteractionID = a.InteractionID
	})
}

func (a ChangeTransactionTimestamp) apply(p *Payment) error {
	return p.mutateTransaction(a.TransactionID, func(tx *Transaction) {
		tx.Timestamp = a.Timestamp
	})
}

func (a AddInterfaceInteraction) apply(p *Payment) error {
	p.Interactions = append(p.Interactions, a.Entry)
	return nil
}

func (a SetAuthorizedAmount) apply(p *Payment) error {
	m := a.Amount
	p.AmountAuthorized = &m
	return nil
}

func (a SetPaidAmount) apply(p *Payment) error {
	m := a.Amount
	p.AmountPaid = &m
	return nil
}

func (a SetExternalInterfaceID) apply(p *Payment) error {
	p.InterfaceID = a.InterfaceID
	return nil
}

func (a SetCustomField) apply(p *Payment) error {
	if p.CustomFields == nil {
		p.CustomFields = make(map[string]string)
	}
	p.CustomFields[a.Name] = a.Value
	return nil
}

func (p *Payment) mutateTransaction(id string, fn func(tx *Transaction)) error {
	for i := range p.Transactions {
		if p.Transactions[i].ID == id {
			fn(&p.Transactions[i])
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
}

// ApplyActions applies the batch to a copy of p. Either every action applies
// or p is returned untouched together with the error. Version and timestamps
// are the ledger's business and are left alone.
func ApplyActions(p *Payment, actions []UpdateAction) (*Payment, error) {
	next := p.Clone()
	for _, action := range actions {
		if err := action.apply(next); err != nil {
			return p, fmt.Errorf("failed to apply %s: %w", action.ActionName(), err)
		}
	}
	return next, nil
}

// ActionNames lists the action names of a batch for logging.
func ActionNames(actions []UpdateAction) []string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = a.ActionName()
	}
	return names
}

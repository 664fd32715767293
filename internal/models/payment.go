package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string
type TransactionState string
type PaymentMethod string

const (
	TransactionTypeAuthorization       TransactionType = "AUTHORIZATION"
	TransactionTypeCharge              TransactionType = "CHARGE"
	TransactionTypeRefund              TransactionType = "REFUND"
	TransactionTypeCancelAuthorization TransactionType = "CANCEL_AUTHORIZATION"
	TransactionTypeChargeback          TransactionType = "CHARGEBACK"

	TransactionStatePending TransactionState = "PENDING"
	TransactionStateSuccess TransactionState = "SUCCESS"
	TransactionStateFailure TransactionState = "FAILURE"
)

const (
	MethodCreditCard         PaymentMethod = "CREDIT_CARD"
	MethodDirectDebitSEPA    PaymentMethod = "DIRECT_DEBIT_SEPA"
	MethodPrepayment         PaymentMethod = "BANK_TRANSFER_ADVANCE"
	MethodInvoice            PaymentMethod = "INVOICE"
	MethodPayPal             PaymentMethod = "WALLET_PAYPAL"
	MethodSofortueberweisung PaymentMethod = "BANK_TRANSFER_SOFORTUEBERWEISUNG"
	MethodUnknown            PaymentMethod = "UNKNOWN"
)

// InterfaceNamePayone is stored on every payment handled by this service.
const InterfaceNamePayone = "PAYONE"

// Custom field names written by the executor.
const (
	CustomFieldRedirectURL = "redirectUrl"
	CustomFieldLanguage    = "languageCode"
)

var clearingTypes = map[PaymentMethod]string{
	MethodCreditCard:         "cc",
	MethodDirectDebitSEPA:    "elv",
	MethodPrepayment:         "vor",
	MethodInvoice:            "rec",
	MethodPayPal:             "wlt",
	MethodSofortueberweisung: "sb",
}

// ClearingType returns the PAYONE clearingtype for the method, or "" when the
// method is not mapped.
func (m PaymentMethod) ClearingType() string {
	return clearingTypes[m]
}

// RequiresRedirect reports whether the customer leaves the shop to confirm.
func (m PaymentMethod) RequiresRedirect() bool {
	return m == MethodPayPal || m == MethodSofortueberweisung
}

// SingleCharge reports whether payments of this method only ever carry one
// CHARGE, no matter how many capture notifications arrive.
func (m PaymentMethod) SingleCharge() bool {
	return m == MethodPrepayment
}

// MethodFromClearingType maps a notification's clearingtype back to a method.
func MethodFromClearingType(clearingType string) PaymentMethod {
	for method, ct := range clearingTypes {
		if ct == clearingType {
			return method
		}
	}
	return MethodUnknown
}

// IsTerminal reports whether the state is SUCCESS or FAILURE.
func (s TransactionState) IsTerminal() bool {
	return s == TransactionStateSuccess || s == TransactionStateFailure
}

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// MinorUnits renders the amount in cents, the unit PAYONE expects.
func (m Money) MinorUnits() int64 {
	return m.Amount.Shift(2).Round(0).IntPart()
}

func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

type Transaction struct {
	ID            string           `json:"id"`
	Type          TransactionType  `json:"type"`
	State         TransactionState `json:"state"`
	InteractionID string           `json:"interaction_id,omitempty"`
	Amount        Money            `json:"amount"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Payment is the versioned aggregate kept by the ledger. Callers never mutate
// it directly; every change goes through ApplyActions under a version check.
type Payment struct {
	ID               string             `json:"id"`
	Version          int64              `json:"version"`
	Reference        string             `json:"reference,omitempty"`
	Method           PaymentMethod      `json:"method"`
	InterfaceName    string             `json:"interface_name"`
	InterfaceID      string             `json:"interface_id,omitempty"`
	AmountPlanned    Money              `json:"amount_planned"`
	AmountAuthorized *Money             `json:"amount_authorized,omitempty"`
	AmountPaid       *Money             `json:"amount_paid,omitempty"`
	Transactions     []Transaction      `json:"transactions"`
	Interactions     []InteractionEntry `json:"interactions"`
	CustomFields     map[string]string  `json:"custom_fields,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// PaymentDraft is what the ledger needs to create a payment.
type PaymentDraft struct {
	Reference     string
	Method        PaymentMethod
	InterfaceName string
	InterfaceID   string
	AmountPlanned Money
	Transactions  []Transaction
	CustomFields  map[string]string
}

// Transaction returns a copy of the transaction with the given id.
func (p *Payment) Transaction(id string) (Transaction, bool) {
	for _, tx := range p.Transactions {
		if tx.ID == id {
			return tx, true
		}
	}
	return Transaction{}, false
}

// FirstNonTerminal returns the first transaction in list order that is
// neither SUCCESS nor FAILURE.
func (p *Payment) FirstNonTerminal() (Transaction, bool) {
	for _, tx := range p.Transactions {
		if !tx.State.IsTerminal() {
			return tx, true
		}
	}
	return Transaction{}, false
}

// FindByInteractionID returns the first transaction of one of the given types
// whose interaction id equals interactionID.
func (p *Payment) FindByInteractionID(interactionID string, types ...TransactionType) (Transaction, bool) {
	for _, tx := range p.Transactions {
		if tx.InteractionID == interactionID && hasType(tx.Type, types) {
			return tx, true
		}
	}
	return Transaction{}, false
}

// FindPending returns the first PENDING transaction of one of the given types.
func (p *Payment) FindPending(types ...TransactionType) (Transaction, bool) {
	for _, tx := range p.Transactions {
		if tx.State == TransactionStatePending && hasType(tx.Type, types) {
			return tx, true
		}
	}
	return Transaction{}, false
}

// HasTransactionOfType reports whether any transaction has one of the types.
func (p *Payment) HasTransactionOfType(types ...TransactionType) bool {
	for _, tx := range p.Transactions {
		if hasType(tx.Type, types) {
			return true
		}
	}
	return false
}

// SuccessfulAuthorization returns the first authorization in SUCCESS state.
func (p *Payment) SuccessfulAuthorization() (Transaction, bool) {
	for _, tx := range p.Transactions {
		if tx.Type == TransactionTypeAuthorization && tx.State == TransactionStateSuccess {
			return tx, true
		}
	}
	return Transaction{}, false
}

func hasType(t TransactionType, types []TransactionType) bool {
	if len(types) == 0 {
		return true
	}
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so that update batches can be applied all or
// nothing.
func (p *Payment) Clone() *Payment {
	c := *p
	c.Transactions = append([]Transaction(nil), p.Transactions...)
	c.Interactions = append([]InteractionEntry(nil), p.Interactions...)
	if p.AmountAuthorized != nil {
		m := *p.AmountAuthorized
		c.AmountAuthorized = &m
	}
	if p.AmountPaid != nil {
		m := *p.AmountPaid
		c.AmountPaid = &m
	}
	if p.CustomFields != nil {
		c.CustomFields = make(map[string]string, len(p.CustomFields))
		for k, v := range p.CustomFields {
			c.CustomFields[k] = v
		}
	}
	return &c
}

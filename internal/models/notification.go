package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type NotificationAction string

const (
	ActionAppointed      NotificationAction = "APPOINTED"
	ActionCapture        NotificationAction = "CAPTURE"
	ActionPaid           NotificationAction = "PAID"
	ActionUnderpaid      NotificationAction = "UNDERPAID"
	ActionCancelation    NotificationAction = "CANCELATION"
	ActionRefund         NotificationAction = "REFUND"
	ActionDebit          NotificationAction = "DEBIT"
	ActionTransfer       NotificationAction = "TRANSFER"
	ActionReminder       NotificationAction = "REMINDER"
	ActionVAuthorization NotificationAction = "VAUTHORIZATION"
	ActionVSettlement    NotificationAction = "VSETTLEMENT"
	ActionInvoice        NotificationAction = "INVOICE"
	ActionFailed         NotificationAction = "FAILED"
)

const (
	NotificationStatusCompleted = "COMPLETED"
	NotificationStatusPending   = "PENDING"
)

// Notification is one TransactionStatus push from PAYONE. It is immutable
// once received.
type Notification struct {
	Key               string
	PortalID          string
	AID               string
	Mode              string
	TxID              string
	UserID            string
	Reference         string
	Action            NotificationAction
	SequenceNumber    string
	TransactionStatus string
	ClearingType      string
	Price             string
	Balance           string
	Receivable        string
	Currency          string
	TxTime            string
	Raw               map[string]string
}

// NewNotification maps the decoded form pairs of a notification body.
// Actions and statuses are upper-cased; PAYONE sends them in lower case.
func NewNotification(values map[string]string) Notification {
	raw := make(map[string]string, len(values))
	for k, v := range values {
		raw[k] = v
	}

	status := values["transaction_status"]
	if status == "" {
		// Notifications without the field predate the status flag and are
		// final by definition.
		status = NotificationStatusCompleted
	}

	return Notification{
		Key:               values["key"],
		PortalID:          values["portalid"],
		AID:               values["aid"],
		Mode:              values["mode"],
		TxID:              values["txid"],
		UserID:            values["userid"],
		Reference:         values["reference"],
		Action:            NotificationAction(strings.ToUpper(values["txaction"])),
		SequenceNumber:    values["sequencenumber"],
		TransactionStatus: strings.ToUpper(status),
		ClearingType:      values["clearingtype"],
		Price:             values["price"],
		Balance:           values["balance"],
		Receivable:        values["receivable"],
		Currency:          values["currency"],
		TxTime:            values["txtime"],
		Raw:               raw,
	}
}

// Sequence returns the sequence number when it is a trustworthy
// non-negative integer.
func (n Notification) Sequence() (int, bool) {
	return ParseSequenceNumber(n.SequenceNumber)
}

func (n Notification) IsCompleted() bool {
	return n.TransactionStatus == NotificationStatusCompleted
}

// PriceMoney parses price and currency.
func (n Notification) PriceMoney() (Money, error) {
	return parseMoney("price", n.Price, n.Currency)
}

func (n Notification) BalanceMoney() (Money, error) {
	return parseMoney("balance", n.Balance, n.Currency)
}

func (n Notification) ReceivableMoney() (Money, error) {
	return parseMoney("receivable", n.Receivable, n.Currency)
}

// Time returns txtime (unix seconds) or the fallback when absent or invalid.
func (n Notification) Time(fallback time.Time) time.Time {
	secs, err := decimal.NewFromString(n.TxTime)
	if err != nil || !secs.IsPositive() {
		return fallback
	}
	return time.Unix(secs.IntPart(), 0).UTC()
}

// AuditPayload serializes the received pairs for the interaction log, minus
// the key hash.
func (n Notification) AuditPayload() string {
	keys := make([]string, 0, len(n.Raw))
	for k := range n.Raw {
		if k == "key" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([][2]string, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, [2]string{k, n.Raw[k]})
	}
	b, err := json.Marshal(ordered)
	if err != nil {
		return ""
	}
	return string(b)
}

func parseMoney(field, value, currency string) (Money, error) {
	if value == "" {
		return Money{}, fmt.Errorf("notification field %s is empty", field)
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return Money{}, fmt.Errorf("invalid notification field %s %q: %w", field, value, err)
	}
	return Money{Amount: amount, Currency: currency}, nil
}

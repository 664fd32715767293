package models

import "time"

type InteractionKind string

const (
	InteractionRequest      InteractionKind = "REQUEST"
	InteractionResponse     InteractionKind = "RESPONSE"
	InteractionRedirect     InteractionKind = "REDIRECT"
	InteractionNotification InteractionKind = "NOTIFICATION"
	InteractionUnsupported  InteractionKind = "UNSUPPORTED"
)

// InteractionEntry is one append-only record of the interaction log. The log
// doubles as the idempotency memory: nothing else remembers what was sent or
// received.
type InteractionEntry struct {
	ID             string          `json:"id"`
	Kind           InteractionKind `json:"kind"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Payload        string          `json:"payload"`
	SequenceNumber string          `json:"sequence_number,omitempty"`
	// Only set on NOTIFICATION entries.
	NotificationAction string `json:"notification_action,omitempty"`
	NotificationStatus string `json:"notification_status,omitempty"`
}

// InteractionsFor returns the log entries of the given kinds that reference
// the transaction, in log order.
func (p *Payment) InteractionsFor(transactionID string, kinds ...InteractionKind) []InteractionEntry {
	var out []InteractionEntry
	for _, e := range p.Interactions {
		if e.TransactionID != transactionID {
			continue
		}
		for _, k := range kinds {
			if e.Kind == k {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// HasNotificationWithSequence reports whether a NOTIFICATION entry carries the
// given sequence number.
func (p *Payment) HasNotificationWithSequence(sequenceNumber string) bool {
	if sequenceNumber == "" {
		return false
	}
	for _, e := range p.Interactions {
		if e.Kind == InteractionNotification && e.SequenceNumber == sequenceNumber {
			return true
		}
	}
	return false
}

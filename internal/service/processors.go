package service

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
)

// NotificationProcessor turns one notification into the update actions for
// the payment it belongs to. Processors never touch the ledger; the
// dispatcher applies what they return.
type NotificationProcessor interface {
	Process(p *models.Payment, n models.Notification, receivedAt time.Time) ([]models.UpdateAction, error)
}

// DefaultProcessors returns the processors for every action with specific
// handling. Everything else goes to DefaultProcessor.
func DefaultProcessors() map[models.NotificationAction]NotificationProcessor {
	return map[models.NotificationAction]NotificationProcessor{
		models.ActionAppointed: AppointedProcessor{},
		models.ActionCapture:   CaptureProcessor{},
		models.ActionPaid:      PaidProcessor{},
		models.ActionUnderpaid: UnderpaidProcessor{},
	}
}

// notificationEntry is the audit record every processor starts with.
func notificationEntry(n models.Notification, receivedAt time.Time) models.UpdateAction {
	return models.AddInterfaceInteraction{Entry: models.InteractionEntry{
		ID:                 uuid.New().String(),
		Kind:               models.InteractionNotification,
		Timestamp:          receivedAt,
		Payload:            n.AuditPayload(),
		SequenceNumber:     n.SequenceNumber,
		NotificationAction: string(n.Action),
		NotificationStatus: n.TransactionStatus,
	}}
}

// DefaultProcessor only records the notification.
type DefaultProcessor struct{}

func (DefaultProcessor) Process(_ *models.Payment, n models.Notification, receivedAt time.Time) ([]models.UpdateAction, error) {
	return []models.UpdateAction{notificationEntry(n, receivedAt)}, nil
}

// AppointedProcessor handles the gateway accepting a payment.
type AppointedProcessor struct{}

func (AppointedProcessor) Process(p *models.Payment, n models.Notification, receivedAt time.Time) ([]models.UpdateAction, error) {
	actions := []models.UpdateAction{notificationEntry(n, receivedAt)}

	seq, ok := n.Sequence()
	if !ok {
		return nil, &IllegalStateError{Action: string(n.Action), Reason: "sequence number " + strconv.Quote(n.SequenceNumber) + " is not a non-negative integer"}
	}
	state, err := appointedState(n)
	if err != nil {
		return nil, err
	}

	if tx, found := p.FindByInteractionID(n.SequenceNumber, models.TransactionTypeAuthorization, models.TransactionTypeCharge); found {
		if tx.State == models.TransactionStatePending && state == models.TransactionStateSuccess {
			actions = append(actions, models.ChangeTransactionState{TransactionID: tx.ID, State: state})
		}
		return actions, nil
	}

	if tx, found := pendingWithoutInteraction(p, models.TransactionTypeAuthorization, models.TransactionTypeCharge); found {
		actions = append(actions, models.ChangeTransactionInteractionID{TransactionID: tx.ID, InteractionID: n.SequenceNumber})
		if state != tx.State {
			actions = append(actions, models.ChangeTransactionState{TransactionID: tx.ID, State: state})
		}
		return actions, nil
	}

	price, err := n.PriceMoney()
	if err != nil {
		return nil, &IllegalStateError{Action: string(n.Action), Reason: err.Error()}
	}

	txType := models.TransactionTypeCharge
	if seq == 0 || !balanceIsZero(n) {
		txType = models.TransactionTypeAuthorization
	}

	actions = append(actions, models.AddTransaction{Transaction: models.Transaction{
		ID:            uuid.New().String(),
		Type:          txType,
		State:         state,
		InteractionID: n.SequenceNumber,
		Amount:        price,
		Timestamp:     n.Time(receivedAt),
	}})
	return actions, nil
}

func appointedState(n models.Notification) (models.TransactionState, error) {
	switch n.TransactionStatus {
	case models.NotificationStatusCompleted:
		return models.TransactionStateSuccess, nil
	case models.NotificationStatusPending:
		return models.TransactionStatePending, nil
	default:
		return "", &IllegalStateError{Action: string(n.Action), Reason: "unknown transaction status " + strconv.Quote(n.TransactionStatus)}
	}
}

// balanceIsZero is false when the balance is missing or unparsable.
func balanceIsZero(n models.Notification) bool {
	balance, err := n.BalanceMoney()
	if err != nil {
		return false
	}
	return balance.Amount.IsZero()
}

func pendingWithoutInteraction(p *models.Payment, types ...models.TransactionType) (models.Transaction, bool) {
	for _, tx := range p.Transactions {
		if tx.State != models.TransactionStatePending || tx.InteractionID != "" {
			continue
		}
		for _, t := range types {
			if tx.Type == t {
				return tx, true
			}
		}
	}
	return models.Transaction{}, false
}

// CaptureProcessor makes sure a CHARGE exists for the captured sequence.
type CaptureProcessor struct{}

func (CaptureProcessor) Process(p *models.Payment, n models.Notification, receivedAt time.Time) ([]models.UpdateAction, error) {
	actions := []models.UpdateAction{notificationEntry(n, receivedAt)}

	if _, ok := n.Sequence(); !ok {
		return nil, &IllegalStateError{Action: string(n.Action), Reason: "sequence number " + strconv.Quote(n.SequenceNumber) + " is not a non-negative integer"}
	}
	if _, found := p.FindByInteractionID(n.SequenceNumber, models.TransactionTypeCharge); found {
		return actions, nil
	}
	if p.Method.SingleCharge() && p.HasTransactionOfType(models.TransactionTypeCharge) {
		return actions, nil
	}

	price, err := n.PriceMoney()
	if err != nil {
		return nil, &IllegalStateError{Action: string(n.Action), Reason: err.Error()}
	}

	actions = append(actions, models.AddTransaction{Transaction: models.Transaction{
		ID:            uuid.New().String(),
		Type:          models.TransactionTypeCharge,
		State:         models.TransactionStatePending,
		InteractionID: n.SequenceNumber,
		Amount:        price,
		Timestamp:     n.Time(receivedAt),
	}})
	return actions, nil
}

// PaidProcessor records that money arrived.
type PaidProcessor struct{}

func (PaidProcessor) Process(p *models.Payment, n models.Notification, receivedAt time.Time) ([]models.UpdateAction, error) {
	actions := []models.UpdateAction{notificationEntry(n, receivedAt)}

	if _, ok := n.Sequence(); !ok {
		return nil, &IllegalStateError{Action: string(n.Action), Reason: "sequence number " + strconv.Quote(n.SequenceNumber) + " is not a non-negative integer"}
	}
	state := models.TransactionStatePending
	if n.IsCompleted() {
		state = models.TransactionStateSuccess
	}

	if tx, found := p.FindByInteractionID(n.SequenceNumber, models.TransactionTypeCharge); found {
		if state == models.TransactionStateSuccess && !tx.State.IsTerminal() {
			actions = append(actions, models.ChangeTransactionState{TransactionID: tx.ID, State: state})
		}
		return actions, nil
	}

	if p.Method.SingleCharge() {
		if tx, found := p.FindPending(models.TransactionTypeCharge); found {
			actions = append(actions, models.ChangeTransactionInteractionID{TransactionID: tx.ID, InteractionID: n.SequenceNumber})
			if state != tx.State {
				actions = append(actions, models.ChangeTransactionState{TransactionID: tx.ID, State: state})
			}
			return actions, nil
		}
	}

	price, err := n.PriceMoney()
	if err != nil {
		return nil, &IllegalStateError{Action: string(n.Action), Reason: err.Error()}
	}

	actions = append(actions, models.AddTransaction{Transaction: models.Transaction{
		ID:            uuid.New().String(),
		Type:          models.TransactionTypeCharge,
		State:         state,
		InteractionID: n.SequenceNumber,
		Amount:        price,
		Timestamp:     n.Time(receivedAt),
	}})
	return actions, nil
}

// UnderpaidProcessor keeps the paid amount at receivable minus balance.
type UnderpaidProcessor struct{}

func (UnderpaidProcessor) Process(p *models.Payment, n models.Notification, receivedAt time.Time) ([]models.UpdateAction, error) {
	actions := []models.UpdateAction{notificationEntry(n, receivedAt)}

	receivable, err := n.ReceivableMoney()
	if err != nil {
		return nil, &IllegalStateError{Action: string(n.Action), Reason: err.Error()}
	}
	balance, err := n.BalanceMoney()
	if err != nil {
		return nil, &IllegalStateError{Action: string(n.Action), Reason: err.Error()}
	}

	paid := models.Money{Amount: receivable.Amount.Sub(balance.Amount), Currency: n.Currency}
	if p.AmountPaid != nil && p.AmountPaid.Equal(paid) {
		return actions, nil
	}
	return append(actions, models.SetPaidAmount{Amount: paid}), nil
}

package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eur(amount string) Money {
	return Money{Amount: decimal.RequireFromString(amount), Currency: "EUR"}
}

func TestApplyActions(t *testing.T) {
	original := &Payment{
		ID:           "p1",
		Version:      3,
		Transactions: []Transaction{{ID: "t1", Type: TransactionTypeAuthorization, State: TransactionStatePending}},
	}

	updated, err := ApplyActions(original, []UpdateAction{
		ChangeTransactionInteractionID{TransactionID: "t1", InteractionID: "0"},
		ChangeTransactionState{TransactionID: "t1", State: TransactionStateSuccess},
		AddInterfaceInteraction{Entry: InteractionEntry{Kind: InteractionResponse, TransactionID: "t1"}},
		SetAuthorizedAmount{Amount: eur("20.00")},
		SetExternalInterfaceID{InterfaceID: "tx-99"},
		SetCustomField{Name: CustomFieldRedirectURL, Value: "https://example.test"},
	})
	require.NoError(t, err)

	tx, ok := updated.Transaction("t1")
	require.True(t, ok)
	assert.Equal(t, TransactionStateSuccess, tx.State)
	assert.Equal(t, "0", tx.InteractionID)
	assert.Len(t, updated.Interactions, 1)
	assert.True(t, updated.AmountAuthorized.Equal(eur("20")))
	assert.Equal(t, "tx-99", updated.InterfaceID)
	assert.Equal(t, "https://example.test", updated.CustomFields[CustomFieldRedirectURL])
	assert.Equal(t, int64(3), updated.Version)

	// the input is never touched
	assert.Equal(t, TransactionStatePending, original.Transactions[0].State)
	assert.Empty(t, original.Interactions)
	assert.Nil(t, original.AmountAuthorized)
}

func TestApplyActionsIsAllOrNothing(t *testing.T) {
	original := &Payment{
		ID:           "p1",
		Transactions: []Transaction{{ID: "t1", State: TransactionStatePending}},
	}

	result, err := ApplyActions(original, []UpdateAction{
		ChangeTransactionState{TransactionID: "t1", State: TransactionStateFailure},
		ChangeTransactionState{TransactionID: "missing", State: TransactionStateFailure},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransactionNotFound))
	assert.Same(t, original, result)
	assert.Equal(t, TransactionStatePending, original.Transactions[0].State)
}

func TestAddTransactionRejectsDuplicateID(t *testing.T) {
	p := &Payment{Transactions: []Transaction{{ID: "t1"}}}

	_, err := ApplyActions(p, []UpdateAction{AddTransaction{Transaction: Transaction{ID: "t1"}}})
	assert.Error(t, err)
}

func TestActionNames(t *testing.T) {
	names := ActionNames([]UpdateAction{SetPaidAmount{}, AddInterfaceInteraction{}})
	assert.Equal(t, []string{"setPaidAmount", "addInterfaceInteraction"}, names)
}

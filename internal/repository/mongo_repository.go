package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
)

const paymentsCollection = "payments"

type MongoPaymentRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoPaymentRepository(db *mongo.Database) *MongoPaymentRepository {
	return &MongoPaymentRepository{
		collection: db.Collection(paymentsCollection),
		now:        time.Now,
	}
}

// EnsureIndexes creates the unique interface id index. Payments without an
// interface id yet are excluded from it.
func (r *MongoPaymentRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "interface_name", Value: 1}, {Key: "interface_id", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"interface_id": bson.M{"$gt": ""}}),
	})
	if err != nil {
		return fmt.Errorf("failed to create payment indexes: %w", err)
	}
	return nil
}

func (r *MongoPaymentRepository) Get(ctx context.Context, id string) (*models.Payment, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoPaymentRepository) FindByInterfaceID(ctx context.Context, interfaceName, interfaceID string) (*models.Payment, error) {
	if interfaceID == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"interface_name": interfaceName, "interface_id": interfaceID})
}

func (r *MongoPaymentRepository) Create(ctx context.Context, draft *models.PaymentDraft) (*models.Payment, error) {
	payment := newPayment(draft, r.now())

	if _, err := r.collection.InsertOne(ctx, toDocument(payment)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}
	return payment, nil
}

// Update replaces the document only if it still carries the expected version.
func (r *MongoPaymentRepository) Update(ctx context.Context, id string, version int64, actions []models.UpdateAction) (*models.Payment, error) {
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

	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": id, "version": version}, toDocument(next))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrVersionConflict
	}
	return next, nil
}

func (r *MongoPaymentRepository) findOne(ctx context.Context, filter bson.M) (*models.Payment, error) {
	var doc paymentDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return doc.toPayment()
}

type moneyDocument struct {
	Amount   string `bson:"amount"`
	Currency string `bson:"currency"`
}

type transactionDocument struct {
	ID            string        `bson:"id"`
	Type          string        `bson:"type"`
	State         string        `bson:"state"`
	InteractionID string        `bson:"interaction_id,omitempty"`
	Amount        moneyDocument `bson:"amount"`
	Timestamp     time.Time     `bson:"timestamp"`
}

type interactionDocument struct {
	ID                 string    `bson:"id"`
	Kind               string    `bson:"kind"`
	TransactionID      string    `bson:"transaction_id,omitempty"`
	Timestamp          time.Time `bson:"timestamp"`
	Payload            string    `bson:"payload"`
	SequenceNumber     string    `bson:"sequence_number,omitempty"`
	NotificationAction string    `bson:"notification_action,omitempty"`
	NotificationStatus string    `bson:"notification_status,omitempty"`
}

type paymentDocument struct {
	ID               string                `bson:"_id"`
	Version          int64                 `bson:"version"`
	Reference        string                `bson:"reference,omitempty"`
	Method           string                `bson:"method"`
	InterfaceName    string                `bson:"interface_name"`
	InterfaceID      string                `bson:"interface_id"`
	AmountPlanned    moneyDocument         `bson:"amount_planned"`
	AmountAuthorized *moneyDocument        `bson:"amount_authorized,omitempty"`
	AmountPaid       *moneyDocument        `bson:"amount_paid,omitempty"`
	Transactions     []transactionDocument `bson:"transactions"`
	Interactions     []interactionDocument `bson:"interactions"`
	CustomFields     map[string]string     `bson:"custom_fields,omitempty"`
	CreatedAt        time.Time             `bson:"created_at"`
	UpdatedAt        time.Time             `bson:"updated_at"`
}

func toMoneyDocument(m models.Money) moneyDocument {
	return moneyDocument{Amount: m.Amount.String(), Currency: m.Currency}
}

func (d moneyDocument) toMoney() (models.Money, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return models.Money{}, fmt.Errorf("invalid stored amount %q: %w", d.Amount, err)
	}
	return models.Money{Amount: amount, Currency: d.Currency}, nil
}

func toDocument(p *models.Payment) paymentDocument {
	doc := paymentDocument{
		ID:            p.ID,
		Version:       p.Version,
		Reference:     p.Reference,
		Method:        string(p.Method),
		InterfaceName: p.InterfaceName,
		InterfaceID:   p.InterfaceID,
		AmountPlanned: toMoneyDocument(p.AmountPlanned),
		Transactions:  make([]transactionDocument, 0, len(p.Transactions)),
		Interactions:  make([]interactionDocument, 0, len(p.Interactions)),
		CustomFields:  p.CustomFields,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.AmountAuthorized != nil {
		m := toMoneyDocument(*p.AmountAuthorized)
		doc.AmountAuthorized = &m
	}
	if p.AmountPaid != nil {
		m := toMoneyDocument(*p.AmountPaid)
		doc.AmountPaid = &m
	}
	for _, tx := range p.Transactions {
		doc.Transactions = append(doc.Transactions, transactionDocument{
			ID:            tx.ID,
			Type:          string(tx.Type),
			State:         string(tx.State),
			InteractionID: tx.InteractionID,
			Amount:        toMoneyDocument(tx.Amount),
			Timestamp:     tx.Timestamp,
		})
	}
	for _, e := range p.Interactions {
		doc.Interactions = append(doc.Interactions, interactionDocument{
			ID:                 e.ID,
			Kind:               string(e.Kind),
			TransactionID:      e.TransactionID,
			Timestamp:          e.Timestamp,
			Payload:            e.Payload,
			SequenceNumber:     e.SequenceNumber,
			NotificationAction: e.NotificationAction,
			NotificationStatus: e.NotificationStatus,
		})
	}
	return doc
}

func (d paymentDocument) toPayment() (*models.Payment, error) {
	planned, err := d.AmountPlanned.toMoney()
	if err != nil {
		return nil, err
	}

	p := &models.Payment{
		ID:            d.ID,
		Version:       d.Version,
		Reference:     d.Reference,
		Method:        models.PaymentMethod(d.Method),
		InterfaceName: d.InterfaceName,
		InterfaceID:   d.InterfaceID,
		AmountPlanned: planned,
		Transactions:  make([]models.Transaction, 0, len(d.Transactions)),
		Interactions:  make([]models.InteractionEntry, 0, len(d.Interactions)),
		CustomFields:  d.CustomFields,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.AmountAuthorized != nil {
		m, err := d.AmountAuthorized.toMoney()
		if err != nil {
			return nil, err
		}
		p.AmountAuthorized = &m
	}
	if d.AmountPaid != nil {
		m, err := d.AmountPaid.toMoney()
		if err != nil {
			return nil, err
		}
		p.AmountPaid = &m
	}
	for _, tx := range d.Transactions {
		amount, err := tx.Amount.toMoney()
		if err != nil {
			return nil, err
		}
		p.Transactions = append(p.Transactions, models.Transaction{
			ID:            tx.ID,
			Type:          models.TransactionType(tx.Type),
			State:         models.TransactionState(tx.State),
			InteractionID: tx.InteractionID,
			Amount:        amount,
			Timestamp:     tx.Timestamp,
		})
	}
	for _, e := range d.Interactions {
		p.Interactions = append(p.Interactions, models.InteractionEntry{
			ID:                 e.ID,
			Kind:               models.InteractionKind(e.Kind),
			TransactionID:      e.TransactionID,
			Timestamp:          e.Timestamp,
			Payload:            e.Payload,
			SequenceNumber:     e.SequenceNumber,
			NotificationAction: e.NotificationAction,
			NotificationStatus: e.NotificationStatus,
		})
	}
	return p, nil
}

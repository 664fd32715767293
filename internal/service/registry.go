package service

import "github.com/commercetools/commercetools-payone-integration-sub001/internal/models"

type executorKey struct {
	method models.PaymentMethod
	txType models.TransactionType
}

// ExecutorRegistry maps (payment method, transaction type) to an executor and
// falls back to a fixed executor for every unregistered combination.
type ExecutorRegistry struct {
	executors map[executorKey]Executor
	fallback  Executor
}

func NewExecutorRegistry(fallback Executor) *ExecutorRegistry {
	return &ExecutorRegistry{
		executors: make(map[executorKey]Executor),
		fallback:  fallback,
	}
}

func (r *ExecutorRegistry) Register(method models.PaymentMethod, txType models.TransactionType, executor Executor) {
	r.executors[executorKey{method: method, txType: txType}] = executor
}

func (r *ExecutorRegistry) Lookup(method models.PaymentMethod, txType models.TransactionType) Executor {
	if executor, ok := r.executors[executorKey{method: method, txType: txType}]; ok {
		return executor
	}
	return r.fallback
}

// SupportedMethods are the methods the gateway request factory can render.
var SupportedMethods = []models.PaymentMethod{
	models.MethodCreditCard,
	models.MethodDirectDebitSEPA,
	models.MethodPrepayment,
	models.MethodInvoice,
	models.MethodPayPal,
	models.MethodSofortueberweisung,
}

// NewDefaultExecutorRegistry registers executor for authorization and charge
// of every supported method.
func NewDefaultExecutorRegistry(executor, unsupported Executor) *ExecutorRegistry {
	registry := NewExecutorRegistry(unsupported)
	for _, method := range SupportedMethods {
		registry.Register(method, models.TransactionTypeAuthorization, executor)
		registry.Register(method, models.TransactionTypeCharge, executor)
	}
	return registry
}

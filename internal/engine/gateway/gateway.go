// Package gateway abstracts the external payment provider. The engine only
// needs order creation and confirmation; the provider-specific callback wire
// format stays outside this module.
package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Order is the provider-side handle for a payment.
type Order struct {
	OrderID  string
	Amount   int64
	Currency string
}

// PaymentGateway creates provider orders and confirms their outcome.
type PaymentGateway interface {
	// CreateOrder registers an order with the provider and returns its
	// unique order reference.
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (Order, error)
	// ConfirmOrder checks whether the given order settled successfully.
	ConfirmOrder(ctx context.Context, orderID string) (bool, error)
}

// Mock is an in-process gateway used in development and tests. Orders always
// confirm with the outcome configured on the instance.
type Mock struct {
	Currency string
	// FailOrders makes every confirmation report failure.
	FailOrders bool
}

func (m Mock) CreateOrder(_ context.Context, amount int64, currency, receipt string) (Order, error) {
	if amount <= 0 {
		return Order{}, fmt.Errorf("gateway: non-positive amount %d", amount)
	}
	if currency == "" {
		currency = m.Currency
	}
	return Order{
		OrderID:  "order_" + uuid.NewString(),
		Amount:   amount,
		Currency: currency,
	}, nil
}

func (m Mock) ConfirmOrder(_ context.Context, orderID string) (bool, error) {
	if orderID == "" {
		return false, fmt.Errorf("gateway: order id required")
	}
	return !m.FailOrders, nil
}

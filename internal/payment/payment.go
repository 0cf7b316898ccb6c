// internal/payment/payment.go
package payment

import "context"

type Service interface {
	CreatePayment(ctx context.Context, orderID string) (*Session, error)
	GetPaymentStatus(ctx context.Context, paymentID string) (*StatusSnapshot, error)
	ProcessPayment(ctx context.Context, data *PaymentData) (*GatewayData, error)
	PollPaymentStatus(ctx context.Context, paymentID string, observer Observer, opts ...PollOption) *PollHandle
	Watch(ctx context.Context, session *Session, observer Observer, opts ...PollOption) *PollHandle
}

package payment

import "errors"

var (
	ErrInvalidPaymentData = errors.New("invalid payment data")
	ErrInvalidOrderID     = errors.New("order id is required")
	ErrInvalidPaymentID   = errors.New("payment id is required")
	ErrUnknownStatus      = errors.New("unknown payment status")
)

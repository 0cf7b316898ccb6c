package payment

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"paywatch/internal/logger"

	"go.uber.org/zap"
)

// Navigator sends the user to an external page. In a browser this is a
// redirect; in the CLI it prints the link.
type Navigator interface {
	Navigate(ctx context.Context, target string) error
}

type NavigatorFunc func(ctx context.Context, target string) error

func (f NavigatorFunc) Navigate(ctx context.Context, target string) error {
	return f(ctx, target)
}

// WriterNavigator writes the invoice URL for a human to open.
type WriterNavigator struct {
	W io.Writer
}

func (n WriterNavigator) Navigate(_ context.Context, target string) error {
	_, err := fmt.Fprintf(n.W, "Open this link to complete the payment:\n  %s\n", target)
	return err
}

type logNavigator struct{}

func (logNavigator) Navigate(ctx context.Context, target string) error {
	logger.FromCtx(ctx).Info("Payment requires redirect", zap.String("invoice_url", target))
	return nil
}

// Dispatcher decides what to do with gateway data. It performs no network I/O.
type Dispatcher struct {
	nav Navigator
}

func NewDispatcher(nav Navigator) *Dispatcher {
	if nav == nil {
		nav = logNavigator{}
	}
	return &Dispatcher{nav: nav}
}

// Process navigates to the invoice URL when there is one and returns nil.
// Otherwise it returns the gateway data unchanged for in-page rendering.
func (d *Dispatcher) Process(ctx context.Context, data *PaymentData) (*GatewayData, error) {
	if data == nil || data.GatewayData == nil {
		return nil, ErrInvalidPaymentData
	}

	gw := data.GatewayData
	if v, ok := gw.Raw["invoice_url"]; ok && v != nil {
		if _, isString := v.(string); !isString {
			return nil, fmt.Errorf("%w: invoice_url must be a string, got %T", ErrInvalidPaymentData, v)
		}
	}
	if gw.InvoiceURL == "" {
		return gw, nil
	}

	// relative targets are valid redirects; only reject what cannot be parsed
	if _, err := url.Parse(gw.InvoiceURL); err != nil {
		return nil, fmt.Errorf("%w: unusable invoice_url %q", ErrInvalidPaymentData, gw.InvoiceURL)
	}

	if err := d.nav.Navigate(ctx, gw.InvoiceURL); err != nil {
		return nil, fmt.Errorf("failed to navigate to invoice: %w", err)
	}
	return nil, nil
}

package payment

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// GatewayData is what the payment gateway handed back: either an invoice URL
// to send the user to, or form fields to render in place.
type GatewayData struct {
	InvoiceURL string
	FormFields map[string]any
	// Raw is the complete gateway object as received.
	Raw map[string]any
}

func (g *GatewayData) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		raw = map[string]any{}
	}

	g.Raw = raw
	g.InvoiceURL, _ = raw["invoice_url"].(string)
	g.FormFields, _ = raw["form_fields"].(map[string]any)
	return nil
}

func (g GatewayData) MarshalJSON() ([]byte, error) {
	if g.Raw != nil {
		return json.Marshal(g.Raw)
	}

	out := map[string]any{}
	if g.InvoiceURL != "" {
		out["invoice_url"] = g.InvoiceURL
	}
	if g.FormFields != nil {
		out["form_fields"] = g.FormFields
	}
	return json.Marshal(out)
}

// PaymentData is the payload handed to ProcessPayment. It matches the body
// returned by the create endpoint.
type PaymentData struct {
	PaymentID   string       `json:"payment_id"`
	Status      Status       `json:"status"`
	GatewayData *GatewayData `json:"gateway_data"`
}

// StatusSnapshot is one observation of a payment's status.
type StatusSnapshot struct {
	PaymentID   string
	Status      Status
	GatewayData *GatewayData
	// Fields is the full decoded payload, untouched.
	Fields map[string]any
	Raw    json.RawMessage
}

func parseSnapshot(paymentID string, body []byte) (*StatusSnapshot, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("failed to decode status response: not an object")
	}

	rawStatus, _ := fields["status"].(string)
	status, err := ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	snap := &StatusSnapshot{
		PaymentID: paymentID,
		Status:    status,
		Fields:    fields,
		Raw:       json.RawMessage(body),
	}
	if id, ok := fields["payment_id"].(string); ok && id != "" {
		snap.PaymentID = id
	}

	// the create endpoint names it gateway_data, the status endpoint payment_data
	for _, key := range []string{"gateway_data", "payment_data"} {
		if obj, ok := fields[key].(map[string]any); ok {
			snap.GatewayData = gatewayDataFromMap(obj)
			break
		}
	}
	return snap, nil
}

func gatewayDataFromMap(obj map[string]any) *GatewayData {
	g := &GatewayData{Raw: obj}
	g.InvoiceURL, _ = obj["invoice_url"].(string)
	g.FormFields, _ = obj["form_fields"].(map[string]any)
	return g
}

// Session is one in-flight payment. The ID never changes; the status only
// moves forward through the lifecycle.
type Session struct {
	id        string
	orderID   string
	createdAt time.Time

	mu          sync.RWMutex
	status      Status
	gatewayData *GatewayData
}

func NewSession(id, orderID string, status Status, gatewayData *GatewayData) (*Session, error) {
	if id == "" {
		return nil, ErrInvalidPaymentID
	}
	if status == "" {
		status = StatusPending
	}
	if status.rank() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}

	return &Session{
		id:          id,
		orderID:     orderID,
		createdAt:   time.Now(),
		status:      status,
		gatewayData: gatewayData,
	}, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) OrderID() string {
	return s.orderID
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) GatewayData() *GatewayData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gatewayData
}

// PaymentData returns the session in the shape ProcessPayment expects.
func (s *Session) PaymentData() *PaymentData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &PaymentData{
		PaymentID:   s.id,
		Status:      s.status,
		GatewayData: s.gatewayData,
	}
}

// Apply folds an observation into the session. Gateway data is adopted only
// if none was known yet. It reports whether the status advanced; stale,
// repeated or post-terminal observations leave the status untouched.
// Snapshots of another payment are ignored entirely.
func (s *Session) Apply(snap *StatusSnapshot) bool {
	if snap == nil || snap.PaymentID != s.id {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gatewayData == nil && snap.GatewayData != nil {
		s.gatewayData = snap.GatewayData
	}

	if s.status.IsTerminal() || snap.Status.rank() <= s.status.rank() {
		return false
	}
	s.status = snap.Status
	return true
}

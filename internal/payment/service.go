package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"paywatch/internal/auth"
	"paywatch/internal/httpclient"
	"paywatch/internal/logger"
	"paywatch/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	createPath = "payments/create/"
	statusPath = "payments/%s/status/"
)

type service struct {
	client     httpclient.Doer
	headers    auth.HeaderProvider
	repo       Repository
	dispatcher *Dispatcher
}

func NewService(client httpclient.Doer, headers auth.HeaderProvider, repo Repository, nav Navigator) Service {
	if repo == nil {
		repo = NewNoopRepository()
	}
	return &service{
		client:     client,
		headers:    headers,
		repo:       repo,
		dispatcher: NewDispatcher(nav),
	}
}

// requestHeaders builds a fresh header set for one call.
func (s *service) requestHeaders() http.Header {
	h := make(http.Header)
	if s.headers == nil {
		return h
	}
	for k, vals := range s.headers.AuthHeader() {
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	return h
}

func (s *service) CreatePayment(ctx context.Context, orderID string) (*Session, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}

	log := logger.FromCtx(ctx).With(zap.String("order_id", orderID))

	headers := s.requestHeaders()
	headers.Set("Idempotency-Key", uuid.New().String())

	log.Info("Creating payment")
	resp, err := s.client.Post(ctx, createPath, map[string]string{"order_id": orderID}, headers)
	if err != nil {
		metrics.PaymentCreated(err)
		log.Error("Payment creation failed", zap.Error(err))
		s.saveLog(ctx, &PaymentLog{OrderID: orderID, Action: ActionCreate, Status: LogError, Data: errorData(err)})
		return nil, err
	}

	var data PaymentData
	if err := resp.Decode(&data); err != nil {
		metrics.PaymentCreated(err)
		log.Error("Failed decoding create response", zap.Error(err))
		return nil, err
	}

	session, err := NewSession(data.PaymentID, orderID, data.Status, data.GatewayData)
	if err != nil {
		metrics.PaymentCreated(err)
		log.Error("Create response is not a usable payment", zap.Error(err))
		return nil, fmt.Errorf("invalid create response: %w", err)
	}

	metrics.PaymentCreated(nil)
	log.Info("Payment created",
		zap.String("payment_id", session.ID()),
		zap.String("status", session.Status().String()),
		zap.Bool("has_gateway_data", data.GatewayData != nil),
	)
	s.saveLog(ctx, &PaymentLog{
		PaymentID: session.ID(),
		OrderID:   orderID,
		Action:    ActionCreate,
		Status:    LogSuccess,
		Data:      json.RawMessage(resp.Body),
	})
	return session, nil
}

func (s *service) GetPaymentStatus(ctx context.Context, paymentID string) (*StatusSnapshot, error) {
	if paymentID == "" {
		return nil, ErrInvalidPaymentID
	}

	ctx = logger.WithPaymentID(ctx, paymentID)
	log := logger.FromCtx(ctx)

	resp, err := s.client.Get(ctx, fmt.Sprintf(statusPath, url.PathEscape(paymentID)), s.requestHeaders())
	if err != nil {
		s.saveLog(ctx, &PaymentLog{PaymentID: paymentID, Action: ActionStatusCheck, Status: LogError, Data: errorData(err)})
		return nil, err
	}

	snap, err := parseSnapshot(paymentID, resp.Body)
	if err != nil {
		log.Error("Failed decoding status response", zap.Error(err), zap.ByteString("response", resp.Body))
		s.saveLog(ctx, &PaymentLog{PaymentID: paymentID, Action: ActionStatusCheck, Status: LogError, Data: errorData(err)})
		return nil, err
	}

	log.Debug("Payment status fetched", zap.String("status", snap.Status.String()))
	s.saveLog(ctx, &PaymentLog{
		PaymentID: paymentID,
		Action:    ActionStatusCheck,
		Status:    LogSuccess,
		Data:      snap.Raw,
	})
	return snap, nil
}

func (s *service) ProcessPayment(ctx context.Context, data *PaymentData) (*GatewayData, error) {
	gw, err := s.dispatcher.Process(ctx, data)
	if err != nil {
		if !errors.Is(err, ErrInvalidPaymentData) && data != nil {
			s.saveLog(ctx, &PaymentLog{PaymentID: data.PaymentID, Action: ActionProcess, Status: LogError, Data: errorData(err)})
		}
		return nil, err
	}

	outcome := "redirect"
	if gw != nil {
		outcome = "form"
	}
	logger.FromCtx(ctx).Info("Payment dispatched",
		zap.String("payment_id", data.PaymentID),
		zap.String("outcome", outcome),
	)
	s.saveLog(ctx, &PaymentLog{
		PaymentID: data.PaymentID,
		Action:    ActionProcess,
		Status:    LogSuccess,
		Data:      mustJSON(map[string]string{"outcome": outcome}),
	})
	return gw, nil
}

func (s *service) PollPaymentStatus(ctx context.Context, paymentID string, observer Observer, opts ...PollOption) *PollHandle {
	return startPolling(ctx, paymentID, s.GetPaymentStatus, observer, opts...)
}

// Watch polls the session's payment and applies each snapshot to the
// session before the observer sees it.
func (s *service) Watch(ctx context.Context, session *Session, observer Observer, opts ...PollOption) *PollHandle {
	return startPolling(ctx, session.ID(), s.GetPaymentStatus, func(r Result) {
		if r.OK() && session.Apply(r.Snapshot) {
			logger.FromCtx(ctx).Info("Payment status changed",
				zap.String("payment_id", session.ID()),
				zap.String("status", session.Status().String()),
			)
		}
		observer(r)
	}, opts...)
}

// saveLog never fails the caller; the audit trail is best effort.
func (s *service) saveLog(ctx context.Context, l *PaymentLog) {
	if l.PaymentID == "" && l.OrderID == "" {
		return
	}
	if err := s.repo.SaveLog(ctx, l); err != nil {
		logger.FromCtx(ctx).Warn("Failed to save payment log",
			zap.String("action", l.Action),
			zap.Error(err),
		)
	}
}

func errorData(err error) json.RawMessage {
	var rejection *httpclient.RemoteRejection
	if errors.As(err, &rejection) && json.Valid(rejection.Body) && len(rejection.Body) > 0 {
		return mustJSON(map[string]any{
			"error":       err.Error(),
			"status_code": rejection.StatusCode,
			"remote":      rejection.Body,
		})
	}
	return mustJSON(map[string]string{"error": err.Error()})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

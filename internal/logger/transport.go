package logger

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// RequestIDTransport stamps every outgoing request with X-Request-ID.
// The id comes from the request context, or a fresh UUID when there is none.
type RequestIDTransport struct {
	Next http.RoundTripper
}

func (t *RequestIDTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get(requestIDHeader) != "" {
		return next(t.Next).RoundTrip(r)
	}

	reqID := RequestIDFrom(r.Context())
	if reqID == "" {
		reqID = uuid.New().String()
	}

	// RoundTrippers must not mutate the caller's request
	clone := r.Clone(WithRequestID(r.Context(), reqID))
	clone.Header.Set(requestIDHeader, reqID)
	return next(t.Next).RoundTrip(clone)
}

// LoggingTransport logs one line per outgoing request.
type LoggingTransport struct {
	Next http.RoundTripper
}

func (t *LoggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	log := FromCtx(r.Context()).With(
		zap.String("method", r.Method),
		zap.String("url", r.URL.Redacted()),
	)

	resp, err := next(t.Next).RoundTrip(r)
	if err != nil {
		log.Warn("outgoing request failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	log.Info("outgoing request",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

func next(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}

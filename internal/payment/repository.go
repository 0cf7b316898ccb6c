package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

const (
	ActionCreate      = "create"
	ActionStatusCheck = "status_check"
	ActionProcess     = "process"

	LogSuccess = "success"
	LogError   = "error"
)

// PaymentLog is an audit entry for one call against the payment API.
type PaymentLog struct {
	ID        int64
	PaymentID string
	OrderID   string
	Action    string
	Status    string
	Data      json.RawMessage
	CreatedAt time.Time
}

type Repository interface {
	SaveLog(ctx context.Context, l *PaymentLog) error
	ListLogs(ctx context.Context, paymentID string) ([]PaymentLog, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SaveLog(ctx context.Context, l *PaymentLog) error {
	const q = `
	INSERT INTO payment_logs (
		payment_id,
		order_id,
		action,
		status,
		data
	)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, created_at;
	`

	data := l.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	return r.db.QueryRowContext(ctx, q,
		l.PaymentID,
		l.OrderID,
		l.Action,
		l.Status,
		[]byte(data),
	).Scan(&l.ID, &l.CreatedAt)
}

func (r *repository) ListLogs(ctx context.Context, paymentID string) ([]PaymentLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, payment_id, order_id, action, status, data, created_at
		FROM payment_logs
		WHERE payment_id = $1
		ORDER BY created_at ASC, id ASC
	`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []PaymentLog
	for rows.Next() {
		var (
			l    PaymentLog
			data []byte
		)
		if err := rows.Scan(&l.ID, &l.PaymentID, &l.OrderID, &l.Action, &l.Status, &data, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Data = json.RawMessage(data)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type noopRepository struct{}

// NewNoopRepository discards every log. Used when no database is configured.
func NewNoopRepository() Repository {
	return noopRepository{}
}

func (noopRepository) SaveLog(context.Context, *PaymentLog) error {
	return nil
}

func (noopRepository) ListLogs(context.Context, string) ([]PaymentLog, error) {
	return nil, nil
}

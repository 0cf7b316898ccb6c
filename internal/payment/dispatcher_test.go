package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNavigator struct {
	targets []string
	err     error
}

func (n *recordingNavigator) Navigate(_ context.Context, target string) error {
	n.targets = append(n.targets, target)
	return n.err
}

func decodePaymentData(t *testing.T, body string) *PaymentData {
	t.Helper()
	var data PaymentData
	require.NoError(t, json.Unmarshal([]byte(body), &data))
	return &data
}

func TestDispatcher_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("Nil data", func(t *testing.T) {
		nav := &recordingNavigator{}
		gw, err := NewDispatcher(nav).Process(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidPaymentData)
		assert.Nil(t, gw)
		assert.Empty(t, nav.targets)
	})

	t.Run("Empty object", func(t *testing.T) {
		nav := &recordingNavigator{}
		gw, err := NewDispatcher(nav).Process(ctx, decodePaymentData(t, `{}`))
		assert.ErrorIs(t, err, ErrInvalidPaymentData)
		assert.Nil(t, gw)
		assert.Empty(t, nav.targets)
	})

	t.Run("Null gateway data", func(t *testing.T) {
		_, err := NewDispatcher(&recordingNavigator{}).Process(ctx, decodePaymentData(t, `{"gateway_data":null}`))
		assert.ErrorIs(t, err, ErrInvalidPaymentData)
	})

	t.Run("Invoice URL navigates once", func(t *testing.T) {
		nav := &recordingNavigator{}
		data := decodePaymentData(t, `{"gateway_data":{"invoice_url":"https://pay.example/x"}}`)

		gw, err := NewDispatcher(nav).Process(ctx, data)
		require.NoError(t, err)
		assert.Nil(t, gw)
		assert.Equal(t, []string{"https://pay.example/x"}, nav.targets)
	})

	t.Run("Form fields returned unchanged", func(t *testing.T) {
		nav := &recordingNavigator{}
		data := decodePaymentData(t, `{"gateway_data":{"form_fields":{"merchant":"m-1","amount":"10.00","nested":{"a":[1,2]}}}}`)

		gw, err := NewDispatcher(nav).Process(ctx, data)
		require.NoError(t, err)
		require.NotNil(t, gw)
		assert.Same(t, data.GatewayData, gw)
		assert.Equal(t, map[string]any{
			"merchant": "m-1",
			"amount":   "10.00",
			"nested":   map[string]any{"a": []any{float64(1), float64(2)}},
		}, gw.FormFields)
		assert.Empty(t, nav.targets)

		out, err := json.Marshal(gw)
		require.NoError(t, err)
		assert.JSONEq(t, `{"form_fields":{"merchant":"m-1","amount":"10.00","nested":{"a":[1,2]}}}`, string(out))
	})

	t.Run("Empty gateway object", func(t *testing.T) {
		nav := &recordingNavigator{}
		gw, err := NewDispatcher(nav).Process(ctx, decodePaymentData(t, `{"gateway_data":{}}`))
		require.NoError(t, err)
		require.NotNil(t, gw)
		assert.Empty(t, gw.Raw)
		assert.Empty(t, nav.targets)
	})

	t.Run("Relative invoice URL", func(t *testing.T) {
		for _, target := range []string{"/pay/checkout/42", "pay.example/x"} {
			nav := &recordingNavigator{}
			body := `{"gateway_data":{"invoice_url":"` + target + `"}}`

			gw, err := NewDispatcher(nav).Process(ctx, decodePaymentData(t, body))
			require.NoError(t, err)
			assert.Nil(t, gw)
			assert.Equal(t, []string{target}, nav.targets)
		}
	})

	t.Run("Unparsable invoice URL", func(t *testing.T) {
		nav := &recordingNavigator{}
		_, err := NewDispatcher(nav).Process(ctx, decodePaymentData(t, `{"gateway_data":{"invoice_url":"%zz"}}`))
		assert.ErrorIs(t, err, ErrInvalidPaymentData)
		assert.Empty(t, nav.targets)
	})

	t.Run("Non-string invoice URL", func(t *testing.T) {
		nav := &recordingNavigator{}
		gw, err := NewDispatcher(nav).Process(ctx, decodePaymentData(t, `{"gateway_data":{"invoice_url":123,"form_fields":{"k":"v"}}}`))
		assert.ErrorIs(t, err, ErrInvalidPaymentData)
		assert.ErrorContains(t, err, "must be a string")
		assert.Nil(t, gw)
		assert.Empty(t, nav.targets)
	})

	t.Run("Null invoice URL is form data", func(t *testing.T) {
		nav := &recordingNavigator{}
		gw, err := NewDispatcher(nav).Process(ctx, decodePaymentData(t, `{"gateway_data":{"invoice_url":null,"form_fields":{"k":"v"}}}`))
		require.NoError(t, err)
		require.NotNil(t, gw)
		assert.Equal(t, map[string]any{"k": "v"}, gw.FormFields)
		assert.Empty(t, nav.targets)
	})

	t.Run("Navigator error", func(t *testing.T) {
		nav := &recordingNavigator{err: errors.New("no browser")}
		_, err := NewDispatcher(nav).Process(ctx, decodePaymentData(t, `{"gateway_data":{"invoice_url":"https://pay.example/x"}}`))
		assert.ErrorContains(t, err, "no browser")
		assert.Len(t, nav.targets, 1)
	})

	t.Run("Default navigator", func(t *testing.T) {
		gw, err := NewDispatcher(nil).Process(ctx, decodePaymentData(t, `{"gateway_data":{"invoice_url":"https://pay.example/x"}}`))
		assert.NoError(t, err)
		assert.Nil(t, gw)
	})
}

func TestWriterNavigator(t *testing.T) {
	var buf bytes.Buffer
	err := WriterNavigator{W: &buf}.Navigate(context.Background(), "https://pay.example/x")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "https://pay.example/x")
}

func TestNavigatorFunc(t *testing.T) {
	var got string
	nav := NavigatorFunc(func(_ context.Context, target string) error {
		got = target
		return nil
	})
	require.NoError(t, nav.Navigate(context.Background(), "https://pay.example/y"))
	assert.Equal(t, "https://pay.example/y", got)
}

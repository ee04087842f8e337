package razorpay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		var req CreateOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 5250, req.Amount)
		assert.Equal(t, "INR", req.Currency)
		assert.Equal(t, "ORD-20240115-001", req.Receipt)
		assert.Equal(t, "7", req.Notes["order_id"])

		w.Write([]byte(`{"id":"order_abc","entity":"order","amount":5250,"currency":"INR","receipt":"ORD-20240115-001","status":"created"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "secret")
	order, err := c.CreateOrder(context.Background(), 5250, "INR", "ORD-20240115-001", map[string]string{"order_id": "7"})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, "created", order.Status)
	assert.Contains(t, string(order.Raw), `"order_abc"`)
}

func TestRefund(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay_xyz/refund", r.URL.Path)
		var req refundRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.EqualValues(t, 10000, req.Amount)
		w.Write([]byte(`{"id":"rfnd_1","entity":"refund","amount":10000,"payment_id":"pay_xyz","status":"processed"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "secret")
	refund, err := c.Refund(context.Background(), "pay_xyz", 10000)
	require.NoError(t, err)
	assert.Equal(t, "rfnd_1", refund.ID)
	assert.Equal(t, "pay_xyz", refund.PaymentID)
}

func TestRefundEscapesPaymentID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/pay%2Fx%3Fy/refund", r.URL.EscapedPath())
		assert.Empty(t, r.URL.RawQuery)
		w.Write([]byte(`{"id":"rfnd_2","entity":"refund","amount":100,"payment_id":"pay/x?y","status":"processed"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "secret")
	refund, err := c.Refund(context.Background(), "pay/x?y", 100)
	require.NoError(t, err)
	assert.Equal(t, "rfnd_2", refund.ID)
}

func TestAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The amount is invalid","field":"amount"}}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "secret")
	_, err := c.Refund(context.Background(), "pay_xyz", 0)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "BAD_REQUEST_ERROR", apiErr.Code)
	assert.Equal(t, "The amount is invalid", err.Error())
}

func TestAPIErrorWithoutBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "key", "secret").CreateOrder(context.Background(), 100, "INR", "r", nil)
	assert.EqualError(t, err, "razorpay returned status 503")
}

func TestSignatureRoundTrip(t *testing.T) {
	secret := "shared_secret"
	sig := Sign("order_abc", "pay_xyz", secret)

	assert.Len(t, sig, 64)
	assert.True(t, VerifySignature("order_abc", "pay_xyz", sig, secret))
	assert.False(t, VerifySignature("order_abc", "pay_xyz", sig, "other_secret"))
	assert.False(t, VerifySignature("order_abd", "pay_xyz", sig, secret))

	// Any single-character change is rejected.
	for i := range sig {
		mutated := []byte(sig)
		if mutated[i] == '0' {
			mutated[i] = '1'
		} else {
			mutated[i] = '0'
		}
		assert.False(t, VerifySignature("order_abc", "pay_xyz", string(mutated), secret), "position %d", i)
	}
}

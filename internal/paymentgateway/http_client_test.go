package paymentgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCheckoutSendsMinorUnitsAndMetadata(t *testing.T) {
	var received createSessionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sessionResponse{ID: "cs_1", URL: "https://pay.example.com/cs_1"})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "sk_test", time.Second)
	checkout, err := client.CreateCheckout(context.Background(), CheckoutRequest{
		Amount:      100,
		Currency:    "bdt",
		ProductName: "Issue boost",
		Metadata:    map[string]string{MetadataType: "boost", MetadataUserEmail: "c@example.com", MetadataIssueID: "i1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_1", checkout.Reference)
	assert.Equal(t, "https://pay.example.com/cs_1", checkout.RedirectURL)
	require.Len(t, received.LineItems, 1)
	assert.Equal(t, int64(10000), received.LineItems[0].UnitAmount)
	assert.Equal(t, "i1", received.Metadata[MetadataIssueID])
}

func TestRetrieveSessionConvertsAmounts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions/cs_1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(sessionResponse{
			ID:            "cs_1",
			PaymentStatus: "paid",
			PaymentIntent: "pi_1",
			AmountTotal:   100000,
			Currency:      "bdt",
			Metadata:      map[string]string{MetadataType: "subscription"},
		})
	}))
	defer server.Close()

	session, err := NewHTTPClient(server.URL, "sk_test", time.Second).RetrieveSession(context.Background(), "cs_1")
	require.NoError(t, err)

	assert.True(t, session.Paid())
	assert.Equal(t, "pi_1", session.TransactionID)
	assert.Equal(t, int64(1000), session.AmountTotal)
	assert.Equal(t, "subscription", session.Metadata[MetadataType])
}

func TestHTTPClientErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			want:    ErrUnavailable,
		},
		{
			name:    "unknown session",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) },
			want:    ErrSessionNotFound,
		},
		{
			name: "slow gateway",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				time.Sleep(200 * time.Millisecond)
				w.WriteHeader(http.StatusOK)
			},
			want: ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewHTTPClient(server.URL, "sk_test", 50*time.Millisecond)
			_, err := client.RetrieveSession(context.Background(), "cs_1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHTTPClientRejectedRequestIsNotUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid currency"}`))
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, "sk_test", time.Second).CreateCheckout(context.Background(), CheckoutRequest{Amount: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "invalid currency")
}

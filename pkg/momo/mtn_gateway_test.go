package momo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMTNGateway(t *testing.T, handler http.HandlerFunc) *MTNGateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	return NewMTNGateway(MTNConfig{
		BaseURL:         server.URL,
		Environment:     "sandbox",
		SubscriptionKey: "sub-key",
		APIUser:         "api-user",
		APIKey:          "api-key",
	}, logger)
}

func mtnTokenHandler(w http.ResponseWriter) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": "test-token",
		"token_type":   "access_token",
		"expires_in":   3600,
	})
}

func TestMTNRequestPayment(t *testing.T) {
	t.Run("Accepted", func(t *testing.T) {
		reference := uuid.NewString()
		var gotRef, gotPayer string

		gateway := newTestMTNGateway(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/collection/token/":
				mtnTokenHandler(w)
			case "/collection/v1_0/requesttopay":
				gotRef = r.Header.Get("X-Reference-Id")
				var body mtnRequestToPay
				json.NewDecoder(r.Body).Decode(&body)
				gotPayer = body.Payer.PartyID
				w.WriteHeader(http.StatusAccepted)
			default:
				t.Errorf("unexpected request to %s", r.URL.Path)
			}
		})

		init, err := gateway.RequestPayment(context.Background(), PaymentRequest{
			Reference:   reference,
			Amount:      5000,
			Currency:    "XAF",
			Phone:       "670123456",
			Description: "SwiftRide booking",
		})
		require.NoError(t, err)
		assert.Empty(t, init.ProviderRef, "MTN tracks by the caller reference")
		assert.Equal(t, reference, gotRef)
		assert.Equal(t, "237670123456", gotPayer)
	})

	t.Run("Rejected", func(t *testing.T) {
		gateway := newTestMTNGateway(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/collection/token/" {
				mtnTokenHandler(w)
				return
			}
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"message":"duplicate reference"}`))
		})

		_, err := gateway.RequestPayment(context.Background(), PaymentRequest{
			Reference: uuid.NewString(),
			Amount:    5000,
			Currency:  "XAF",
			Phone:     "670123456",
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "409")
	})

	t.Run("Token Failure", func(t *testing.T) {
		gateway := newTestMTNGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := gateway.RequestPayment(context.Background(), PaymentRequest{
			Reference: uuid.NewString(),
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "access token")
	})
}

func TestMTNCheckStatus(t *testing.T) {
	statusServer := func(status int, body string) *MTNGateway {
		return newTestMTNGateway(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/collection/token/" {
				mtnTokenHandler(w)
				return
			}
			w.WriteHeader(status)
			w.Write([]byte(body))
		})
	}

	t.Run("Pending", func(t *testing.T) {
		gateway := statusServer(http.StatusOK, `{"status":"PENDING"}`)

		result, err := gateway.CheckStatus(context.Background(), uuid.NewString(), "")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, result.State)
	})

	t.Run("Successful", func(t *testing.T) {
		gateway := statusServer(http.StatusOK, `{"status":"SUCCESSFUL"}`)

		result, err := gateway.CheckStatus(context.Background(), uuid.NewString(), "")
		require.NoError(t, err)
		assert.Equal(t, StatusSuccessful, result.State)
		assert.Empty(t, result.Reason)
	})

	t.Run("Failed With String Reason", func(t *testing.T) {
		gateway := statusServer(http.StatusOK, `{"status":"FAILED","reason":"APPROVAL_REJECTED"}`)

		result, err := gateway.CheckStatus(context.Background(), uuid.NewString(), "")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, result.State)
		assert.Equal(t, "APPROVAL_REJECTED", result.Reason)
	})

	t.Run("Failed With Object Reason", func(t *testing.T) {
		gateway := statusServer(http.StatusOK,
			`{"status":"FAILED","reason":{"code":"PAYER_NOT_FOUND","message":"payer not registered"}}`)

		result, err := gateway.CheckStatus(context.Background(), uuid.NewString(), "")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, result.State)
		assert.Equal(t, "PAYER_NOT_FOUND", result.Reason)
	})

	t.Run("Not Found", func(t *testing.T) {
		gateway := statusServer(http.StatusNotFound, ``)

		result, err := gateway.CheckStatus(context.Background(), uuid.NewString(), "")
		assert.ErrorIs(t, err, ErrTransactionNotFound)
		assert.Nil(t, result)
	})

	t.Run("Gateway Error Is Not A Decline", func(t *testing.T) {
		gateway := statusServer(http.StatusInternalServerError, `upstream error`)

		result, err := gateway.CheckStatus(context.Background(), uuid.NewString(), "")
		assert.Error(t, err)
		assert.Nil(t, result)
	})
}

func TestMTNTokenReuse(t *testing.T) {
	tokenRequests := 0
	gateway := newTestMTNGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/collection/token/" {
			tokenRequests++
			mtnTokenHandler(w)
			return
		}
		w.Write([]byte(`{"status":"PENDING"}`))
	})

	for i := 0; i < 3; i++ {
		_, err := gateway.CheckStatus(context.Background(), uuid.NewString(), "")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, tokenRequests, "token should be fetched once and reused until expiry")
}

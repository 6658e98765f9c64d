package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MTNGateway implements the Gateway interface against the MTN MoMo
// collection API (requesttopay flow)
type MTNGateway struct {
	baseURL         string
	environment     string // X-Target-Environment header
	subscriptionKey string
	apiUser         string
	apiKey          string
	callbackURL     string
	client          *http.Client
	logger          *logrus.Logger

	// Token management
	token       string
	tokenMutex  sync.RWMutex
	tokenExpiry time.Time
}

// MTNConfig holds configuration for the MTN MoMo gateway
type MTNConfig struct {
	BaseURL         string
	Environment     string
	SubscriptionKey string
	APIUser         string
	APIKey          string
	CallbackURL     string
}

// NewMTNGateway creates a new MTN MoMo collection client
func NewMTNGateway(config MTNConfig, logger *logrus.Logger) *MTNGateway {
	return &MTNGateway{
		baseURL:         config.BaseURL,
		environment:     config.Environment,
		subscriptionKey: config.SubscriptionKey,
		apiUser:         config.APIUser,
		apiKey:          config.APIKey,
		callbackURL:     config.CallbackURL,
		logger:          logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Provider returns ProviderMTN
func (g *MTNGateway) Provider() Provider {
	return ProviderMTN
}

type mtnTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// getAccessToken fetches a collection token using basic auth
func (g *MTNGateway) getAccessToken(ctx context.Context) error {
	url := fmt.Sprintf("%s/collection/token/", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(g.apiUser, g.apiKey)
	req.Header.Set("Ocp-Apim-Subscription-Key", g.subscriptionKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp mtnTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}

	g.tokenMutex.Lock()
	g.token = tokenResp.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	g.tokenMutex.Unlock()

	return nil
}

// isTokenValid checks if the current token is still valid. Tokens are
// treated as expired one minute early to avoid rejected requests.
func (g *MTNGateway) isTokenValid() bool {
	g.tokenMutex.RLock()
	defer g.tokenMutex.RUnlock()

	if g.token == "" {
		return false
	}
	return time.Now().Before(g.tokenExpiry.Add(-1 * time.Minute))
}

func (g *MTNGateway) ensureValidToken(ctx context.Context) error {
	if g.isTokenValid() {
		return nil
	}
	return g.getAccessToken(ctx)
}

func (g *MTNGateway) bearerToken() string {
	g.tokenMutex.RLock()
	defer g.tokenMutex.RUnlock()
	return g.token
}

type mtnRequestToPay struct {
	Amount       string   `json:"amount"`
	Currency     string   `json:"currency"`
	ExternalID   string   `json:"externalId"`
	Payer        mtnPayer `json:"payer"`
	PayerMessage string   `json:"payerMessage"`
	PayeeNote    string   `json:"payeeNote"`
}

type mtnPayer struct {
	PartyIDType string `json:"partyIdType"` // Always MSISDN
	PartyID     string `json:"partyId"`
}

// RequestPayment pushes an approval prompt to the subscriber. The
// reference doubles as MTN's X-Reference-Id, making retries idempotent
// on their side; no separate provider handle is issued.
func (g *MTNGateway) RequestPayment(ctx context.Context, payReq PaymentRequest) (*PaymentInit, error) {
	if err := g.ensureValidToken(ctx); err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	body := mtnRequestToPay{
		Amount:     fmt.Sprintf("%.0f", payReq.Amount),
		Currency:   payReq.Currency,
		ExternalID: payReq.Reference,
		Payer: mtnPayer{
			PartyIDType: "MSISDN",
			PartyID:     "237" + payReq.Phone,
		},
		PayerMessage: payReq.Description,
		PayeeNote:    payReq.Description,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal requesttopay: %w", err)
	}

	url := fmt.Sprintf("%s/collection/v1_0/requesttopay", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create requesttopay request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.bearerToken())
	req.Header.Set("X-Reference-Id", payReq.Reference)
	req.Header.Set("X-Target-Environment", g.environment)
	req.Header.Set("Ocp-Apim-Subscription-Key", g.subscriptionKey)
	req.Header.Set("Content-Type", "application/json")
	if g.callbackURL != "" {
		req.Header.Set("X-Callback-Url", g.callbackURL)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesttopay failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("requesttopay rejected with status %d: %s", resp.StatusCode, string(respBody))
	}

	g.logger.WithFields(logrus.Fields{
		"reference": payReq.Reference,
		"amount":    payReq.Amount,
		"currency":  payReq.Currency,
	}).Info("MTN requesttopay accepted")

	return &PaymentInit{}, nil
}

type mtnStatusResponse struct {
	Status string          `json:"status"` // PENDING, SUCCESSFUL, FAILED
	Reason json.RawMessage `json:"reason,omitempty"`
}

// declineReason decodes MTN's reason field, which is a bare string in
// sandbox and a {code, message} object in production
func (r *mtnStatusResponse) declineReason() string {
	if len(r.Reason) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Reason, &s); err == nil {
		return s
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.Reason, &obj); err == nil && obj.Code != "" {
		return obj.Code
	}
	return string(r.Reason)
}

// CheckStatus reports the current state of a requesttopay transaction.
// MTN is queried by the original reference, so providerRef is unused.
func (g *MTNGateway) CheckStatus(ctx context.Context, reference, _ string) (*Status, error) {
	if err := g.ensureValidToken(ctx); err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	url := fmt.Sprintf("%s/collection/v1_0/requesttopay/%s", g.baseURL, reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.bearerToken())
	req.Header.Set("X-Target-Environment", g.environment)
	req.Header.Set("Ocp-Apim-Subscription-Key", g.subscriptionKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTransactionNotFound
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status check returned %d: %s", resp.StatusCode, string(respBody))
	}

	var statusResp mtnStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}

	switch statusResp.Status {
	case "SUCCESSFUL":
		return &Status{State: StatusSuccessful}, nil
	case "FAILED", "REJECTED", "TIMEOUT":
		reason := statusResp.declineReason()
		if reason == "" {
			reason = statusResp.Status
		}
		return &Status{State: StatusFailed, Reason: reason}, nil
	default:
		return &Status{State: StatusPending}, nil
	}
}

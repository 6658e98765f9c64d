package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// OrangeGateway implements the Gateway interface against the Orange
// Money Cameroon cashin API. Orange tracks transactions by a payToken
// issued at init time; RequestPayment returns it as the ProviderRef and
// every status check must present it back.
type OrangeGateway struct {
	baseURL      string
	clientID     string
	clientSecret string
	merchantKey  string
	pin          string
	client       *http.Client
	logger       *logrus.Logger

	// Token management
	token       string
	tokenMutex  sync.RWMutex
	tokenExpiry time.Time
}

// OrangeConfig holds configuration for the Orange Money gateway
type OrangeConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	MerchantKey  string
	PIN          string
}

// NewOrangeGateway creates a new Orange Money cashin client
func NewOrangeGateway(config OrangeConfig, logger *logrus.Logger) *OrangeGateway {
	return &OrangeGateway{
		baseURL:      config.BaseURL,
		clientID:     config.ClientID,
		clientSecret: config.ClientSecret,
		merchantKey:  config.MerchantKey,
		pin:          config.PIN,
		logger:       logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Provider returns ProviderOrange
func (g *OrangeGateway) Provider() Provider {
	return ProviderOrange
}

type orangeTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// getAccessToken fetches an OAuth token via client credentials
func (g *OrangeGateway) getAccessToken(ctx context.Context) error {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/token", g.baseURL), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(g.clientID, g.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp orangeTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}

	g.tokenMutex.Lock()
	g.token = tokenResp.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	g.tokenMutex.Unlock()

	return nil
}

func (g *OrangeGateway) isTokenValid() bool {
	g.tokenMutex.RLock()
	defer g.tokenMutex.RUnlock()

	if g.token == "" {
		return false
	}
	return time.Now().Before(g.tokenExpiry.Add(-1 * time.Minute))
}

func (g *OrangeGateway) ensureValidToken(ctx context.Context) error {
	if g.isTokenValid() {
		return nil
	}
	return g.getAccessToken(ctx)
}

func (g *OrangeGateway) bearerToken() string {
	g.tokenMutex.RLock()
	defer g.tokenMutex.RUnlock()
	return g.token
}

type orangeInitResponse struct {
	Message string `json:"message"`
	Data    struct {
		PayToken string `json:"payToken"`
	} `json:"data"`
}

type orangePayRequest struct {
	SubscriberMsisdn  string `json:"subscriberMsisdn"`
	ChannelUserMsisdn string `json:"channelUserMsisdn"`
	Amount            string `json:"amount"`
	Description       string `json:"description"`
	OrderID           string `json:"orderId"`
	PayToken          string `json:"payToken"`
	PIN               string `json:"pin"`
	NotifURL          string `json:"notifUrl,omitempty"`
}

type orangePayResponse struct {
	Message string `json:"message"`
	Data    struct {
		PayToken       string `json:"payToken"`
		Status         string `json:"status"`
		InitTxnMessage string `json:"inittxnmessage"`
	} `json:"data"`
}

// RequestPayment runs Orange's two-step init/pay flow. The issued
// payToken comes back as the ProviderRef; the caller must persist it to
// be able to check status later.
func (g *OrangeGateway) RequestPayment(ctx context.Context, payReq PaymentRequest) (*PaymentInit, error) {
	if err := g.ensureValidToken(ctx); err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	// Step 1: init to obtain a payToken
	initReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/omcoreapis/1.0.2/mp/init", g.baseURL), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create init request: %w", err)
	}
	initReq.Header.Set("Authorization", "Bearer "+g.bearerToken())
	initReq.Header.Set("X-AUTH-TOKEN", g.merchantKey)

	initResp, err := g.client.Do(initReq)
	if err != nil {
		return nil, fmt.Errorf("init request failed: %w", err)
	}
	defer initResp.Body.Close()

	if initResp.StatusCode != http.StatusOK && initResp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(initResp.Body)
		return nil, fmt.Errorf("init rejected with status %d: %s", initResp.StatusCode, string(body))
	}

	var initBody orangeInitResponse
	if err := json.NewDecoder(initResp.Body).Decode(&initBody); err != nil {
		return nil, fmt.Errorf("failed to parse init response: %w", err)
	}
	if initBody.Data.PayToken == "" {
		return nil, fmt.Errorf("init returned no payToken: %s", initBody.Message)
	}

	// Step 2: pay, pushing the approval prompt to the subscriber
	payBody := orangePayRequest{
		SubscriberMsisdn:  payReq.Phone,
		ChannelUserMsisdn: g.merchantKey,
		Amount:            fmt.Sprintf("%.0f", payReq.Amount),
		Description:       payReq.Description,
		OrderID:           payReq.Reference,
		PayToken:          initBody.Data.PayToken,
		PIN:               g.pin,
	}
	jsonData, err := json.Marshal(payBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/omcoreapis/1.0.2/mp/pay", g.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create pay request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.bearerToken())
	req.Header.Set("X-AUTH-TOKEN", g.merchantKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("pay rejected with status %d: %s", resp.StatusCode, string(respBody))
	}

	var payResp orangePayResponse
	if err := json.NewDecoder(resp.Body).Decode(&payResp); err != nil {
		return nil, fmt.Errorf("failed to parse pay response: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"reference": payReq.Reference,
		"pay_token": initBody.Data.PayToken,
		"amount":    payReq.Amount,
	}).Info("Orange Money payment initiated")

	return &PaymentInit{ProviderRef: initBody.Data.PayToken}, nil
}

type orangeStatusResponse struct {
	Message string `json:"message"`
	Data    struct {
		Status            string `json:"status"` // PENDING, SUCCESSFULL, FAILED, EXPIRED, CANCELLED
		InitTxnMessage    string `json:"inittxnmessage"`
		ConfirmTxnMessage string `json:"confirmtxnmessage"`
	} `json:"data"`
}

// CheckStatus reports the current state of a payment. providerRef is
// the payToken issued at init; without it Orange cannot locate the
// transaction.
func (g *OrangeGateway) CheckStatus(ctx context.Context, _, providerRef string) (*Status, error) {
	if providerRef == "" {
		return nil, ErrTransactionNotFound
	}

	if err := g.ensureValidToken(ctx); err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/omcoreapis/1.0.2/mp/paymentstatus/%s", g.baseURL, providerRef), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.bearerToken())
	req.Header.Set("X-AUTH-TOKEN", g.merchantKey)

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

	var statusResp orangeStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}

	// Orange spells success with a double L
	switch statusResp.Data.Status {
	case "SUCCESSFULL", "SUCCESSFUL":
		return &Status{State: StatusSuccessful}, nil
	case "FAILED", "EXPIRED", "CANCELLED":
		reason := statusResp.Data.ConfirmTxnMessage
		if reason == "" {
			reason = statusResp.Data.Status
		}
		return &Status{State: StatusFailed, Reason: reason}, nil
	default:
		return &Status{State: StatusPending}, nil
	}
}

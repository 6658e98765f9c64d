package momo

import (
	"fmt"
	"math"
)

// Provider identifies a mobile money operator
type Provider string

const (
	ProviderMTN    Provider = "mtn"
	ProviderOrange Provider = "orange"
)

// ProviderConfig describes a payment provider as shown in the wizard's
// payment step: branding, fees and transaction bounds
type ProviderConfig struct {
	Code        Provider `json:"code"`
	DisplayName string   `json:"display_name"`
	FeePercent  float64  `json:"fee_percent"`
	MinAmount   float64  `json:"min_amount"`
	MaxAmount   float64  `json:"max_amount"`
	Currency    string   `json:"currency"`
	// Dial string shown to the payer while waiting for the approval prompt
	USSDHint string `json:"ussd_hint"`
}

var providers = []ProviderConfig{
	{
		Code:        ProviderMTN,
		DisplayName: "MTN Mobile Money",
		FeePercent:  1.0,
		MinAmount:   100,
		MaxAmount:   1000000,
		Currency:    "XAF",
		USSDHint:    "*126#",
	},
	{
		Code:        ProviderOrange,
		DisplayName: "Orange Money",
		FeePercent:  1.5,
		MinAmount:   100,
		MaxAmount:   500000,
		Currency:    "XAF",
		USSDHint:    "#150#",
	},
}

// Providers returns the supported payment providers in display order
func Providers() []ProviderConfig {
	out := make([]ProviderConfig, len(providers))
	copy(out, providers)
	return out
}

// GetProvider looks up a provider by code
func GetProvider(code string) (ProviderConfig, error) {
	for _, p := range providers {
		if string(p.Code) == code {
			return p, nil
		}
	}
	return ProviderConfig{}, fmt.Errorf("unsupported payment provider: %s", code)
}

// Fee returns the provider fee for an amount, rounded to the nearest
// whole franc (XAF has no subunit)
func (c ProviderConfig) Fee(amount float64) float64 {
	return math.Round(amount * c.FeePercent / 100)
}

// ValidateAmount checks the amount against the provider's transaction bounds
func (c ProviderConfig) ValidateAmount(amount float64) error {
	if amount < c.MinAmount {
		return fmt.Errorf("amount %.0f below %s minimum of %.0f %s", amount, c.DisplayName, c.MinAmount, c.Currency)
	}
	if amount > c.MaxAmount {
		return fmt.Errorf("amount %.0f above %s maximum of %.0f %s", amount, c.DisplayName, c.MaxAmount, c.Currency)
	}
	return nil
}

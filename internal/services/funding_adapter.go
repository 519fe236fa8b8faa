package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/spf13/viper"
)

// FundingIntent is the card processor's handle for a pending capture.
type FundingIntent struct {
	IntentRef    string `json:"intentRef"`
	ClientSecret string `json:"clientSecret"`
}

// FundingAdapter bridges real-world funding and withdrawal into the ledger.
// The core treats it as an untrusted, possibly-slow external call and never
// holds an account lock across any of these methods.
type FundingAdapter interface {
	CreateIntent(ctx context.Context, amount int64, currency string) (*FundingIntent, error)
	ConfirmIntent(ctx context.Context, intentRef string) (bool, error)
	ReverseIntent(ctx context.Context, intentRef string, amount int64) (string, error)
}

// CardProcessorAdapter talks to the external card processor over HTTP.
type CardProcessorAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewCardProcessorAdapter() *CardProcessorAdapter {
	viper.SetDefault("processor.base_url", "https://api.cardprocessor.example.com/v1")
	viper.SetDefault("processor.timeout", 15*time.Second)

	return &CardProcessorAdapter{
		baseURL: viper.GetString("processor.base_url"),
		apiKey:  viper.GetString("processor.api_key"),
		client:  &http.Client{Timeout: viper.GetDuration("processor.timeout")},
	}
}

// CreateIntent registers a capture intent with the processor.
func (a *CardProcessorAdapter) CreateIntent(ctx context.Context, amount int64, currency string) (*FundingIntent, error) {
	payload := map[string]any{
		"amount":   amount,
		"currency": currency,
		"metadata": map[string]string{"transaction_type": "ADD_MONEY"},
	}

	var result struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := a.post(ctx, "/payment_intents", payload, &result); err != nil {
		log.Printf("[FUNDING] Create intent failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrExternalAdapterFailure, err)
	}

	log.Printf("[FUNDING] Created intent %s for %d %s", result.ID, amount, currency)
	return &FundingIntent{IntentRef: result.ID, ClientSecret: result.ClientSecret}, nil
}

// ConfirmIntent checks whether the capture succeeded on the processor side.
func (a *CardProcessorAdapter) ConfirmIntent(ctx context.Context, intentRef string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/payment_intents/"+intentRef, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrExternalAdapterFailure, err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		log.Printf("[FUNDING] Confirm intent request failed: %v", err)
		return false, fmt.Errorf("%w: %v", ErrExternalAdapterFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: processor returned status %d", ErrExternalAdapterFailure, resp.StatusCode)
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("%w: %v", ErrExternalAdapterFailure, err)
	}

	log.Printf("[FUNDING] Intent %s status: %s", intentRef, result.Status)
	return result.Status == "succeeded", nil
}

// ReverseIntent refunds part of a captured intent and returns the reversal id.
func (a *CardProcessorAdapter) ReverseIntent(ctx context.Context, intentRef string, amount int64) (string, error) {
	payload := map[string]any{
		"payment_intent": intentRef,
		"amount":         amount,
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := a.post(ctx, "/refunds", payload, &result); err != nil {
		log.Printf("[FUNDING] Reverse intent %s failed: %v", intentRef, err)
		return "", fmt.Errorf("%w: %v", ErrExternalAdapterFailure, err)
	}

	log.Printf("[FUNDING] Reversed %d on intent %s, reversal %s", amount, intentRef, result.ID)
	return result.ID, nil
}

func (a *CardProcessorAdapter) post(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("processor returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Email is one outgoing message. At least one of HTML or Text is required.
type Email struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

type ResendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type ResendResponse struct {
	ID string `json:"id"`
}

type ResendError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Name       string `json:"name"`
}

// ErrNotConfigured is returned when no Resend API key is set.
var ErrNotConfigured = errors.New("Resend API key not configured")

var resendAPIKey string
var fromEmail = "Emily <emily@example.com>"
var resendEndpoint = "https://api.resend.com/emails"
var httpClient = &http.Client{Timeout: 30 * time.Second}

func SetResendAPIKey(key string) {
	resendAPIKey = key
}

// SetFromEmail overrides the sender. Empty keeps the default.
func SetFromEmail(email string) {
	if email != "" {
		fromEmail = email
	}
}

// SendEmail delivers msg through Resend and returns the message ID.
func SendEmail(ctx context.Context, msg Email) (string, error) {
	if len(msg.To) == 0 {
		return "", fmt.Errorf("'to' email address is required")
	}
	if msg.Subject == "" {
		return "", fmt.Errorf("'subject' is required")
	}
	if msg.HTML == "" && msg.Text == "" {
		return "", fmt.Errorf("'html' or 'text' body is required")
	}

	if resendAPIKey == "" {
		return "", ErrNotConfigured
	}

	reqBody := ResendRequest{
		From:    fromEmail,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resendEndpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+resendAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var resendErr ResendError
		json.Unmarshal(body, &resendErr)
		if resendErr.Message == "" {
			resendErr.Message = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("Resend API error: %s", resendErr.Message)
	}

	var resendResp ResendResponse
	if err := json.Unmarshal(body, &resendResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return resendResp.ID, nil
}

package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL     string
	Username    string
	Password    string
	Path        string
	CountryCode string
	HTTPClient  *http.Client
}

type SendMessageRequest struct {
	Phone       string `json:"phone"`
	Message     string `json:"message"`
	IsForwarded bool   `json:"is_forwarded"`
	Duration    int    `json:"duration"`
}

type SendMessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		MessageID string `json:"message_id"`
		Status    string `json:"status"`
	} `json:"data"`
}

func NewClient(baseURL, username, password, path string) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Username:    username,
		Password:    password,
		Path:        path,
		CountryCode: "91",
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NormalizePhone strips formatting and turns a local number with a leading 0
// into international form using the client's country code.
func (c *Client) NormalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	normalized := digits.String()
	if strings.HasPrefix(normalized, "0") && c.CountryCode != "" {
		return c.CountryCode + strings.TrimLeft(normalized, "0")
	}
	return normalized
}

// SendMessage sends a message via the WhatsApp gateway.
func (c *Client) SendMessage(ctx context.Context, phone, message string, isForwarded bool, duration int) (*SendMessageResponse, error) {
	normalized := c.NormalizePhone(phone)
	if normalized == "" {
		return nil, fmt.Errorf("invalid phone number %q", phone)
	}

	requestData := SendMessageRequest{
		Phone:       normalized + "@s.whatsapp.net",
		Message:     message,
		IsForwarded: isForwarded,
		Duration:    duration,
	}

	jsonData, err := json.Marshal(requestData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request data: %w", err)
	}

	url := fmt.Sprintf("%s/%s/send/message", c.BaseURL, c.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	auth := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("whatsapp gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response SendMessageResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if !response.Success {
		return &response, fmt.Errorf("whatsapp gateway rejected message: %s", response.Message)
	}

	return &response, nil
}

// SendTextMessage sends a plain text message.
func (c *Client) SendTextMessage(ctx context.Context, phone, message string) error {
	_, err := c.SendMessage(ctx, phone, message, false, 0)
	return err
}

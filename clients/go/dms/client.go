// Package dms provides a client for the DMS channel console API.
package dms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultBaseURL is the API root of a locally running console.
const DefaultBaseURL = "http://localhost:3001/api"

// Client is a console API client.
type Client struct {
	BaseURL     string
	SessionFile string
	SessionID   string
	HTTPClient  *http.Client
}

// APIError is a failed envelope returned by the console.
type APIError struct {
	StatusCode int
	Message    string
	Details    json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("console error %d: %s", e.StatusCode, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// NewClient creates a new client. An empty baseURL uses DMS_API_URL, then DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("DMS_API_URL")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	sessionFile := os.Getenv("DMS_SESSION_FILE")
	if sessionFile == "" {
		home, _ := os.UserHomeDir()
		sessionFile = filepath.Join(home, ".dms_session")
	}

	c := &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		SessionFile: sessionFile,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadSession()
	return c
}

// LoadSession reads the saved session ID from disk.
func (c *Client) LoadSession() error {
	data, err := os.ReadFile(c.SessionFile)
	if err != nil {
		return err
	}
	c.SessionID = strings.TrimSpace(string(data))
	return nil
}

// SaveSession writes the current session ID to disk.
func (c *Client) SaveSession() error {
	if err := os.MkdirAll(filepath.Dir(c.SessionFile), 0700); err != nil {
		return err
	}
	return os.WriteFile(c.SessionFile, []byte(c.SessionID), 0600)
}

// ClearSession forgets the saved session.
func (c *Client) ClearSession() error {
	c.SessionID = ""
	if err := os.Remove(c.SessionFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// do performs a request and decodes the envelope's data into out.
func (c *Client) do(method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.SessionID != "" {
		req.Header.Set("X-Session-ID", c.SessionID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return errors.Wrapf(err, "decode response (status %d)", resp.StatusCode)
	}
	if resp.StatusCode >= 400 || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Error, Details: env.Data}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(env.Data, out), "decode data")
}

// ConnectRequest is the request body for connecting to the DMS.
type ConnectRequest struct {
	CustomerID string `json:"customer_id"`
	JWTSecret  string `json:"jwt_secret"`
	ChannelID  string `json:"channel_id"`
	APIURL     string `json:"api_url"`
}

// ConnectResponse is the response from a successful connect.
type ConnectResponse struct {
	Connected  bool            `json:"connected"`
	CustomerID string          `json:"customer_id"`
	ChannelID  string          `json:"channel_id"`
	SessionID  string          `json:"session_id"`
	Status     json.RawMessage `json:"status"`
	Message    string          `json:"message"`
}

// Connect binds the console to a DMS channel and saves the session ID.
func (c *Client) Connect(req ConnectRequest) (*ConnectResponse, error) {
	var resp ConnectResponse
	if err := c.do(http.MethodPost, "/connect", req, &resp); err != nil {
		return nil, err
	}
	c.SessionID = resp.SessionID
	if err := c.SaveSession(); err != nil {
		return &resp, errors.Wrap(err, "save session")
	}
	return &resp, nil
}

// Disconnect drops the console's DMS binding.
func (c *Client) Disconnect() error {
	if err := c.do(http.MethodPost, "/disconnect", nil, nil); err != nil {
		return err
	}
	return c.ClearSession()
}

// SendMessageRequest is the request body for sending a message.
type SendMessageRequest struct {
	CustomerID   string         `json:"customer_id"`
	Message      any            `json:"message"`
	MessageType  string         `json:"message_type,omitempty"`
	CustomerName string         `json:"customer_name,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// SendMessageResponse is the response from a sent message.
type SendMessageResponse struct {
	MessageSent bool   `json:"message_sent"`
	CustomerID  string `json:"customer_id"`
	MessageType string `json:"message_type"`
	MessageID   string `json:"message_id,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// SendMessage sends a text or rich content message to a customer.
func (c *Client) SendMessage(req SendMessageRequest) (*SendMessageResponse, error) {
	var resp SendMessageResponse
	if err := c.do(http.MethodPost, "/send-message", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Typing sends a typing indicator for a customer.
func (c *Client) Typing(customerID string) error {
	return c.do(http.MethodPost, "/typing", map[string]string{"customer_id": customerID}, nil)
}

// WaitTime sends a wait time update in seconds.
func (c *Client) WaitTime(customerID string, seconds int64) error {
	return c.do(http.MethodPost, "/wait-time", map[string]any{"customer_id": customerID, "wait_time": seconds}, nil)
}

// CustomerSession is one conversation tracked by the console.
type CustomerSession struct {
	CustomerID string     `json:"customer_id"`
	ChannelID  string     `json:"channel_id"`
	SessionID  string     `json:"session_id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// EndSession ends a customer conversation.
func (c *Client) EndSession(customerID, reason string) (*CustomerSession, error) {
	var resp struct {
		Session CustomerSession `json:"session"`
	}
	req := map[string]string{"customer_id": customerID}
	if reason != "" {
		req["reason"] = reason
	}
	if err := c.do(http.MethodPost, "/end-session", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

// ActivityRecord is one entry of the console's activity log.
type ActivityRecord struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	Method     string    `json:"method,omitempty"`
	Endpoint   string    `json:"endpoint,omitempty"`
	Message    string    `json:"message"`
	Data       any       `json:"data,omitempty"`
	DurationMS *int64    `json:"duration_ms,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
}

// Status is the console's connection status.
type Status struct {
	Connection struct {
		Connected          bool   `json:"connected"`
		SessionID          string `json:"session_id,omitempty"`
		ChannelID          string `json:"channel_id,omitempty"`
		APIURL             string `json:"api_url,omitempty"`
		WebhookURL         string `json:"webhook_url,omitempty"`
		SessionCount       int    `json:"session_count"`
		CredentialSessions int    `json:"credential_sessions"`
	} `json:"connection"`
	Sessions       []CustomerSession `json:"sessions"`
	RecentActivity []ActivityRecord  `json:"recent_activity"`
}

// Status returns the connection status.
func (c *Client) Status() (*Status, error) {
	var resp Status
	if err := c.do(http.MethodGet, "/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Activity returns up to limit activity records, newest first. limit <= 0 uses the server default.
func (c *Client) Activity(limit int) ([]ActivityRecord, error) {
	path := "/activity"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var resp struct {
		Logs []ActivityRecord `json:"logs"`
	}
	if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

// Sessions returns every tracked customer session.
func (c *Client) Sessions() ([]CustomerSession, error) {
	var resp struct {
		Sessions []CustomerSession `json:"sessions"`
	}
	if err := c.do(http.MethodGet, "/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

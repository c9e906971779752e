// Package webhook posts chat messages to the configured HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Mode selects how a response counts as delivered.
type Mode string

const (
	// ModeAck treats any response that arrives as delivered and ignores the body.
	ModeAck Mode = "ack"
	// ModeReply requires a 2xx status and a JSON body, and reads its reply field.
	ModeReply Mode = "reply"
)

// ParseMode validates a mode name.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeAck:
		return ModeAck, nil
	case "", ModeReply:
		return ModeReply, nil
	default:
		return "", fmt.Errorf("invalid reply mode %q (want ack or reply)", raw)
	}
}

// Payload is the JSON body sent to the webhook.
type Payload struct {
	Message   string    `json:"message"`
	User      string    `json:"user"`
	Timestamp time.Time `json:"-"`
}

// MarshalJSON renders the timestamp as an ISO-8601 string, omitted when zero.
func (p Payload) MarshalJSON() ([]byte, error) {
	body := struct {
		Message   string `json:"message"`
		User      string `json:"user"`
		Timestamp string `json:"timestamp,omitempty"`
	}{Message: p.Message, User: p.User}
	if !p.Timestamp.IsZero() {
		body.Timestamp = p.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	return json.Marshal(body)
}

// Result is what the webhook answered.
type Result struct {
	StatusCode int
	Reply      string
	HasReply   bool
}

type replyBody struct {
	Reply *string `json:"reply"`
}

// Poster is the outbound call used by the chat service.
type Poster interface {
	Post(ctx context.Context, endpoint string, payload Payload) (Result, error)
}

// Client posts payloads over HTTP.
type Client struct {
	http *http.Client
	mode Mode
}

// NewClient returns a Client. A nil httpClient uses a client without a timeout:
// failures surface only through the transport.
func NewClient(httpClient *http.Client, mode Mode) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if mode == "" {
		mode = ModeReply
	}
	return &Client{http: httpClient, mode: mode}
}

// Mode reports the configured reply mode.
func (c *Client) Mode() Mode { return c.mode }

// Post sends payload to endpoint as JSON.
func (c *Client) Post(ctx context.Context, endpoint string, payload Payload) (Result, error) {
	if err := checkEndpoint(endpoint); err != nil {
		return Result{}, &SendError{Endpoint: endpoint, Err: err}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, &SendError{Endpoint: endpoint, Err: errors.Wrap(err, "encode payload")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, &SendError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, &SendError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	result := Result{StatusCode: resp.StatusCode}
	if c.mode == ModeAck {
		_, _ = io.Copy(io.Discard, resp.Body)
		return result, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return result, &SendError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP error! status: %d", resp.StatusCode),
		}
	}

	var decoded replyBody
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return result, &SendError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "invalid JSON response")}
	}
	if decoded.Reply != nil {
		result.Reply = *decoded.Reply
		result.HasReply = *decoded.Reply != ""
	}
	return result, nil
}

func checkEndpoint(endpoint string) error {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return errors.Wrap(err, "invalid endpoint")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("unsupported endpoint %q", endpoint)
	}
	return nil
}

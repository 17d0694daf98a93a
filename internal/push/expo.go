package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Pusher delivers one push notification to one device token.
type Pusher interface {
	Push(ctx context.Context, token, title, body string, data map[string]string) error
}

// ExpoPusher talks to the Expo push HTTP API. The service stores Expo tokens
// verbatim, so no token translation happens here.
type ExpoPusher struct {
	endpoint string
	client   *http.Client
}

// NewExpoPusher constructs a pusher against the given endpoint.
func NewExpoPusher(endpoint string) *ExpoPusher {
	return &ExpoPusher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type expoRequest struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Sound string            `json:"sound"`
	Data  map[string]string `json:"data,omitempty"`
}

func (p *ExpoPusher) Push(ctx context.Context, token, title, body string, data map[string]string) error {
	payload, err := json.Marshal(expoRequest{
		To:    token,
		Title: title,
		Body:  body,
		Sound: "default",
		Data:  data,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}
	return nil
}

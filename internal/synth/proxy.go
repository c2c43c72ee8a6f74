package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dgnsrekt/narrate/internal/narration"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4096

// Proxy calls a local proxy that forwards to the synthesis API with the
// caller's credential.
type Proxy struct {
	url        string
	credential string
	client     *http.Client
}

type proxyRequest struct {
	Credential string  `json:"credential"`
	Model      string  `json:"model"`
	Voice      string  `json:"voice"`
	Input      string  `json:"input"`
	Speed      float64 `json:"speed"`
}

// NewProxy creates a proxy client.
func NewProxy(cfg Config) *Proxy {
	return &Proxy{
		url:        cfg.URL,
		credential: cfg.Credential,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// Name implements Synthesizer.
func (p *Proxy) Name() string { return ProviderProxy }

// Synthesize implements Synthesizer.
func (p *Proxy) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	body, err := json.Marshal(proxyRequest{
		Credential: p.credential,
		Model:      req.Model,
		Voice:      req.Voice,
		Input:      req.Text,
		Speed:      req.Speed,
	})
	if err != nil {
		return nil, apiError("encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, apiError("build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, apiError("request failed", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, apiError(fmt.Sprintf("proxy returned %s", resp.Status), describeError(msg))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apiError("read audio", err)
	}
	if len(data) == 0 {
		return nil, apiError("empty response", narration.ErrEmptyAudio)
	}
	return data, nil
}

// describeError extracts a message from a JSON or plain-text error body.
func describeError(body []byte) error {
	var parsed struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		switch e := parsed.Error.(type) {
		case string:
			return fmt.Errorf("%s", e)
		case map[string]any:
			if m, ok := e["message"].(string); ok {
				return fmt.Errorf("%s", m)
			}
		}
		if parsed.Message != "" {
			return fmt.Errorf("%s", parsed.Message)
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		text = "no details"
	}
	return fmt.Errorf("%s", text)
}

var _ Synthesizer = (*Proxy)(nil)

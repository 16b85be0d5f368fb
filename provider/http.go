package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// defaults fills the unset fields of a hosted backend's Config.
type defaults struct {
	baseURL   string
	model     string
	maxTokens int
}

func (d defaults) apply(cfg Config) Config {
	if cfg.Model == "" {
		cfg.Model = d.model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.baseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = d.maxTokens
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return cfg
}

// reply is a decoded API response that may carry an error object in place of
// content.
type reply interface {
	apiError() string
}

// postJSON sends in to url and decodes the answer into out. Every failure is
// prefixed with the backend name; a non-200 answer reports the status and the
// API's own message when it sent one.
func postJSON(ctx context.Context, cfg Config, name, url string, headers map[string]string, in any, out reply) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", name, err)
	}

	decodeErr := json.Unmarshal(body, out)
	msg := ""
	if decodeErr == nil {
		msg = out.apiError()
	}
	switch {
	case resp.StatusCode != http.StatusOK:
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return fmt.Errorf("%s: API error (status %d): %s", name, resp.StatusCode, msg)
	case decodeErr != nil:
		return fmt.Errorf("%s: unmarshal response: %w", name, decodeErr)
	case msg != "":
		return fmt.Errorf("%s: %s", name, msg)
	}
	return nil
}

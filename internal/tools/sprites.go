package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultSpritesAPI is the hosted sprites control plane.
const DefaultSpritesAPI = "https://api.sprites.dev"

// SpritesRuntime executes commands on a remote sprites VM through its
// exec endpoint. Users who configured a VM get their tool calls routed
// here instead of the host.
type SpritesRuntime struct {
	BaseURL  string
	APIToken string
	VMName   string
	Client   *http.Client
}

// NewSpritesRuntime builds a runtime for one user's VM.
func NewSpritesRuntime(apiToken, vmName string) *SpritesRuntime {
	return &SpritesRuntime{
		BaseURL:  DefaultSpritesAPI,
		APIToken: apiToken,
		VMName:   vmName,
	}
}

func (r *SpritesRuntime) Run(ctx context.Context, cmd []string, stdin string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := url.Values{}
	for _, c := range cmd {
		params.Add("cmd", c)
	}
	if stdin != "" {
		params.Set("stdin", "true")
	}

	base := r.BaseURL
	if base == "" {
		base = DefaultSpritesAPI
	}
	endpoint := fmt.Sprintf("%s/v1/sprites/%s/exec?%s",
		strings.TrimSuffix(base, "/"), url.PathEscape(r.VMName), params.Encode())

	var body io.Reader
	if stdin != "" {
		body = strings.NewReader(stdin)
	}
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to build exec request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.APIToken)

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach sprites API: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read exec response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("sprites exec failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

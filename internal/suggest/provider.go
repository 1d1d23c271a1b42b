// Package suggest adapts an external content-suggestion provider into the
// optimization loop. The gateway enforces timeouts and size limits and
// normalizes every provider error into a typed Failure; the orchestrator
// decides whether another cycle retries.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rybkagreen/pagetune/internal/analyzer"
)

const (
	defaultAPIURL  = "https://api.anthropic.com/v1/messages"
	apiVersion     = "2023-06-01"
	defaultModel   = "claude-sonnet-4-20250514"
	maxTokens      = 8192
	defaultTimeout = 45 * time.Second
)

// Request carries the current page state and issue context into a
// suggestion call.
type Request struct {
	HTML     string
	Issues   []analyzer.Issue
	Keywords []string
}

// Provider produces candidate replacement markup for a page. Implementations
// own their transport; the gateway owns validation and failure mapping.
type Provider interface {
	Suggest(ctx context.Context, req Request) (string, error)
}

const systemPrompt = `You improve the SEO quality of HTML documents. You receive an HTML page and a list of detected issues. Return ONLY the revised, complete HTML document with the issues addressed. Preserve the page's visible content and structure; change metadata, attributes, and markup only where an issue requires it. No commentary, no markdown fences.`

// HTTPProvider calls an Anthropic-style messages API.
type HTTPProvider struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
	Client  *http.Client
}

// NewHTTPProvider builds an HTTPProvider with defaults applied.
func NewHTTPProvider(apiKey, model string, timeout time.Duration) *HTTPProvider {
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPProvider{
		URL:     defaultAPIURL,
		APIKey:  apiKey,
		Model:   model,
		Timeout: timeout,
		Client:  &http.Client{Timeout: timeout},
	}
}

// apiRequest is the messages API request body.
type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// apiResponse is the subset of the messages API response we read.
type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Suggest implements Provider.
func (p *HTTPProvider) Suggest(ctx context.Context, req Request) (string, error) {
	if p.APIKey == "" {
		return "", fmt.Errorf("suggestion provider: no API key configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	body, err := json.Marshal(apiRequest{
		Model:     p.Model,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Messages:  []apiMessage{{Role: "user", Content: buildPrompt(req)}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling provider: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading provider response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decoding provider response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("provider error %s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var sb strings.Builder
	for _, c := range parsed.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return stripFences(sb.String()), nil
}

// buildPrompt renders the page and its issue list into the user message.
func buildPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString("## Detected Issues\n\n")
	for _, is := range req.Issues {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", is.Severity, is.Kind, is.Message)
	}

	if len(req.Keywords) > 0 {
		sb.WriteString("\n## Target Keywords\n\n")
		for _, kw := range req.Keywords {
			fmt.Fprintf(&sb, "- %s\n", kw)
		}
	}

	sb.WriteString("\n## HTML Document\n\n")
	sb.WriteString(req.HTML)

	return sb.String()
}

// stripFences removes a wrapping markdown code fence if the provider added
// one despite the instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```html")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// internal/explain/azure_openai.go
package explain

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
)

const ProviderAzureOpenAI = "azure_openai"

type AzureOpenAIConfig struct {
	Endpoint    string
	APIKey      string
	Deployment  string
	APIVersion  string
	MaxTokens   int
	Temperature float64
}

// AzureOpenAIClient calls the chat completions endpoint of an Azure OpenAI deployment.
type AzureOpenAIClient struct {
	cfg        AzureOpenAIConfig
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func NewAzureOpenAIClient(cfg AzureOpenAIConfig) (*AzureOpenAIClient, error) {
	if cfg.Endpoint == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("azure openai endpoint and api key are required")
	}
	if cfg.Deployment == "" {
		cfg.Deployment = "gpt-4"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-02-15-preview"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 300
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}

	return &AzureOpenAIClient{
		cfg: cfg,
		httpClient: &http.Client{
			// Per-call deadlines come from the context.
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

func (c *AzureOpenAIClient) Provider() string { return ProviderAzureOpenAI }

func (c *AzureOpenAIClient) completionsURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(c.cfg.Endpoint, "/"),
		url.PathEscape(c.cfg.Deployment),
		url.QueryEscape(c.cfg.APIVersion),
	)
}

// Generate sends the system prompt plus the user prompt and returns the first choice.
func (c *AzureOpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrGenerationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrGenerationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrGenerationFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: azure openai status %d: %s", ErrGenerationFailed, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrGenerationFailed, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion choices returned", ErrGenerationFailed)
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

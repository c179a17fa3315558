// internal/explain/factory.go
package explain

import (
	"context"
	"strings"

	"welfare-caseworker/internal/common/config"
	"welfare-caseworker/internal/common/logger"
)

// NewGenerator builds the configured backend. Missing credentials are not an error:
// the service runs on templated explanations and a nil generator is returned.
func NewGenerator(ctx context.Context, cfg config.ExplainerConfig, log logger.Logger) (TextGenerator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", config.ProviderNone:
		log.Info("text generation disabled, using fallback explanations", nil)
		return nil, nil

	case config.ProviderAzureOpenAI:
		if !cfg.AzureOpenAI.Configured() {
			log.Warn("azure openai credentials not found, using fallback explanations", map[string]interface{}{
				"endpointSet": cfg.AzureOpenAI.Endpoint != "",
				"apiKeySet":   cfg.AzureOpenAI.APIKey != "",
			})
			return nil, nil
		}
		client, err := NewAzureOpenAIClient(AzureOpenAIConfig{
			Endpoint:    cfg.AzureOpenAI.Endpoint,
			APIKey:      cfg.AzureOpenAI.APIKey,
			Deployment:  cfg.AzureOpenAI.Deployment,
			APIVersion:  cfg.AzureOpenAI.APIVersion,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, err
		}
		log.Info("azure openai client initialized", map[string]interface{}{
			"deployment": cfg.AzureOpenAI.Deployment,
			"apiVersion": cfg.AzureOpenAI.APIVersion,
		})
		return client, nil

	case config.ProviderGemini:
		if !cfg.Gemini.Configured() {
			log.Warn("gemini credentials not found, using fallback explanations", nil)
			return nil, nil
		}
		client, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.Gemini.APIKey,
			Model:       cfg.Gemini.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, err
		}
		log.Info("gemini client initialized", map[string]interface{}{"model": cfg.Gemini.Model})
		return client, nil

	default:
		log.Warn("unsupported text generation provider, using fallback explanations", map[string]interface{}{
			"provider": cfg.Provider,
		})
		return nil, nil
	}
}

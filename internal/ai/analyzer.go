// Package ai wraps an OpenAI-compatible chat endpoint for alert analysis.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Go2NetKDD/internal/config"
	"Go2NetKDD/internal/model"

	"github.com/sashabaranov/go-openai"
)

const (
	systemPrompt = "You are a senior network security analyst reviewing the output of an " +
		"intrusion detection classifier trained on NSL-KDD features extracted from Zeek logs. " +
		"Answer in concise markdown."

	reportTemplate = "Between %s and %s, %d connection(s) were flagged as attacks. " +
		"They are grouped below by protocol, service and Zeek connection state.\n\n" +
		"Identify the most likely attack categories (DoS, probe, R2L, U2R), their severity, " +
		"and the next steps for investigation.\n\n" +
		"--- Attack Report ---\n%s\n--- End of Attack Report ---"

	maxAnswerTokens = 1024
)

// AlertAnalyzer implements model.Analyzer using a chat completion.
type AlertAnalyzer struct {
	model  string
	client *openai.Client
}

// NewAlertAnalyzer connects to the configured endpoint. An API key is required.
func NewAlertAnalyzer(cfg *config.AIConfig) (*AlertAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AI API key is not configured")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &AlertAnalyzer{
		model:  cfg.Model,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// AnalyzeAlerts asks the model to interpret an attack report.
func (a *AlertAnalyzer) AnalyzeAlerts(ctx context.Context, report model.AlertReport) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, Request(a.model, report))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("AI request timeout: %w", err)
		}
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	for _, choice := range resp.Choices {
		if choice.Message.Content != "" {
			return choice.Message.Content, nil
		}
	}
	return "", fmt.Errorf("OpenAI API returned no analysis")
}

// Request builds the chat completion for a report.
func Request(modelName string, report model.AlertReport) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       modelName,
		MaxTokens:   maxAnswerTokens,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(reportTemplate,
					report.Since.UTC().Format(time.RFC3339), report.Until.UTC().Format(time.RFC3339),
					report.Attacks, report.Summary),
			},
		},
	}
}

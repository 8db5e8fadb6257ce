package main

import (
	"context"
	"fmt"
	"log"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAnalyzer implements Analyzer with OpenAI chat completions in JSON mode.
type OpenAIAnalyzer struct {
	client  *openai.Client
	model   string
	metrics *Metrics
}

// NewOpenAIAnalyzer creates an analyzer. baseURL may be empty.
func NewOpenAIAnalyzer(apiKey, model, baseURL string, metrics *Metrics) *OpenAIAnalyzer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if apiKey == "" {
		log.Println("[OpenAI] Warning: OPENAI_API_KEY not set")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIAnalyzer{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		metrics: metrics,
	}
}

// Analyze extracts lead fields and the next reply from one utterance.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, utterance string, known LeadFields) (*Analysis, error) {
	var out Analysis
	if err := a.chatJSON(ctx, analysisSystemPrompt, buildAnalysisPrompt(utterance, known), 0.1, &out); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	return &out, nil
}

// Summarize produces the end-of-call summary.
func (a *OpenAIAnalyzer) Summarize(ctx context.Context, fields LeadFields, intent string) (*CallSummary, error) {
	var out CallSummary
	if err := a.chatJSON(ctx, summarySystemPrompt, buildSummaryPrompt(fields, intent), 0.2, &out); err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	return &out, nil
}

func (a *OpenAIAnalyzer) chatJSON(ctx context.Context, system, prompt string, temperature float32, out any) error {
	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	a.metrics.observeLatency("openai", start)
	if err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("%w: no choices", errMalformedOutput)
	}
	return decodeModelJSON(resp.Choices[0].Message.Content, out)
}

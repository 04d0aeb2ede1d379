package openai_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"clinsight/models"
)

const (
	completionsURL = "https://api.openai.com/v1/chat/completions"
	embeddingsURL  = "https://api.openai.com/v1/embeddings"
)

// client implements the provider interface using OpenAI's API.
type client struct {
	apiKey          string
	completionModel string
	embeddingModel  string
	temperature     float64
	maxTokens       int
	httpClient      *http.Client
}

// Message represents a message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient creates a new OpenAI client.
func NewClient(apiKey, completionModel, embeddingModel string, temperature float64, maxTokens int, timeout time.Duration) *client {
	return &client{
		apiKey:          apiKey,
		completionModel: completionModel,
		embeddingModel:  embeddingModel,
		temperature:     temperature,
		maxTokens:       maxTokens,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

func (c *client) ModelVersion() string { return "openai/" + c.completionModel }

const summarizeSystemPrompt = `You are a clinical documentation assistant. You receive a de-identified clinical note and excerpts from medical reference literature. Produce a concise clinical summary (3-8 sentences) and a list of recommended actions grounded in the provided evidence.

RESPONSE FORMAT:
Respond ONLY with valid JSON in the following format:
{
  "summary": "clinical summary text",
  "actions": [
    {"text": "action description", "category": "medication|treatment|diagnostic|lifestyle|followup", "severity": "low|medium|high"}
  ],
  "model_score": 0.0
}
model_score is your own confidence in the recommendations, between 0 and 1. Do not include any other text or explanation.`

// Summarize generates the clinical summary and action drafts for a note.
func (c *client) Summarize(ctx context.Context, note string, evidence []models.EvidenceHit) (models.SummaryResult, error) {
	var ctxParts []string
	for i, hit := range evidence {
		ctxParts = append(ctxParts, fmt.Sprintf("Evidence %d: %s\n%s", i+1, hit.Title, hit.Snippet))
	}
	userPrompt := fmt.Sprintf("CLINICAL NOTE:\n%s\n\nREFERENCE LITERATURE:\n%s", note, strings.Join(ctxParts, "\n\n"))

	messages := []Message{
		{Role: "system", Content: summarizeSystemPrompt},
		{Role: "user", Content: userPrompt},
	}
	raw, err := c.sendRequest(ctx, messages)
	if err != nil {
		return models.SummaryResult{}, err
	}

	var parsed struct {
		Summary string               `json:"summary"`
		Actions []models.ActionDraft `json:"actions"`
		Score   *float64             `json:"model_score"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return models.SummaryResult{}, fmt.Errorf("failed to parse summary response: %w", err)
	}
	return models.SummaryResult{
		Summary:    parsed.Summary,
		Actions:    parsed.Actions,
		ModelScore: parsed.Score,
	}, nil
}

// Translate renders text into the target language at a plain reading level.
func (c *client) Translate(ctx context.Context, text, lang string) (string, error) {
	prompt := fmt.Sprintf(`Translate the following medical summary into the language with ISO 639-1 code %q, written for a patient at roughly an 8th-grade reading level. Respond with the translation only.

%s`, lang, text)
	messages := []Message{
		{Role: "user", Content: prompt},
	}
	out, err := c.sendRequest(ctx, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CreateEmbedding generates embeddings for the given texts.
func (c *client) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	requestBody := map[string]interface{}{
		"model": c.embeddingModel,
		"input": texts,
	}
	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", embeddingsURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	var openaiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	vecs := make([][]float32, len(openaiResp.Data))
	for i, d := range openaiResp.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func (c *client) sendRequest(ctx context.Context, messages []Message) (string, error) {
	body := chatRequest{
		Model:       c.completionModel,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", completionsURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status: %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return parsed.Choices[0].Message.Content, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

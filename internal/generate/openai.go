package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dawnloop/gmbot/internal/httpkit"
	"github.com/dawnloop/gmbot/internal/persona"
	"github.com/dawnloop/gmbot/internal/platform"
	"github.com/dawnloop/gmbot/internal/replyctx"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"

	// Generation parameters: replies are one short line, so the token cap
	// is tight and the temperature leaves room for variety.
	openAITemperature = 0.8
	openAIMaxTokens   = 50
)

// OpenAIGenerator generates replies via the OpenAI chat-completions API.
// Transport and API failures are logged and reported as skips — a flaky
// model endpoint must never abort an engagement pass.
type OpenAIGenerator struct {
	apiKey     string
	model      string
	baseURL    string
	maxLen     int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIGenerator creates a generator for the given model. baseURL
// overrides the API host for compatible endpoints; empty means
// api.openai.com. maxLen <= 0 uses DefaultMaxReplyLen.
func NewOpenAIGenerator(apiKey, model, baseURL string, maxLen int, logger *slog.Logger) *OpenAIGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxReplyLen
	}

	return &OpenAIGenerator{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		maxLen:  maxLen,
		logger:  logger.With("provider", "openai"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(60 * time.Second),
		),
	}
}

var _ Generator = (*OpenAIGenerator)(nil)

// OpenAI request/response types

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, c platform.Candidate, rc replyctx.Context, p persona.Persona) Result {
	reqBody := openAIRequest{
		Model: g.model,
		Messages: []openAIMessage{
			{Role: "system", Content: BuildSystemPrompt(p, rc, g.maxLen)},
			{Role: "user", Content: fmt.Sprintf("Reply to this post: %q", c.Text)},
		},
		Temperature: openAITemperature,
		MaxTokens:   openAIMaxTokens,
	}

	text, err := g.complete(ctx, reqBody)
	if err != nil {
		g.logger.Warn("generation failed, skipping candidate",
			"post_id", c.ID,
			"error", err,
		)
		return Result{Skip: true, SkipReason: "generation error", TemplateID: "ai:v1"}
	}

	if reason := Validate(text, g.maxLen); reason != "" {
		g.logger.Debug("generated text rejected",
			"post_id", c.ID,
			"reason", reason,
		)
		return Result{Skip: true, SkipReason: reason, TemplateID: "ai:v1"}
	}

	return Result{Text: strings.TrimSpace(text), TemplateID: "ai:v1"}
}

func (g *OpenAIGenerator) complete(ctx context.Context, reqBody openAIRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := g.baseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 2048)
		return "", fmt.Errorf("chat completion: status %d: %s", resp.StatusCode, body)
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return parsed.Choices[0].Message.Content, nil
}

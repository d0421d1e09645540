package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/config"
)

// TextGenerator turns a prompt into model output.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GeminiClient calls the generateContent endpoint of a Gemini-compatible API.
type GeminiClient struct {
	httpClient *resty.Client
	model      string
	apiKey     string
	logger     *zap.Logger
}

func NewGeminiClient(cfg config.AIConfig, logger *zap.Logger) *GeminiClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.APIURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiClient{httpClient: client, model: cfg.Model, apiKey: cfg.APIKey, logger: logger}
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	var response geminiResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}}).
		SetResult(&response).
		SetError(&response).
		Post("/models/" + c.model + ":generateContent")
	if err != nil {
		c.logger.Error("generation API call failed", zap.Error(err))
		return "", fmt.Errorf("failed to call generation API: %w", err)
	}
	if resp.IsError() {
		msg := resp.Status()
		if response.Error != nil {
			msg = response.Error.Message
		}
		c.logger.Error("generation API returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("msg", msg),
		)
		return "", fmt.Errorf("generation API error: %s (status: %d)", msg, resp.StatusCode())
	}
	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("generation API returned no candidates")
	}
	return response.Candidates[0].Content.Parts[0].Text, nil
}

var _ TextGenerator = (*GeminiClient)(nil)

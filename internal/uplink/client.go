// Package uplink implements every external collaborator interface against
// the Google Gemini API: command resolution with function declarations,
// grounded trend discovery, image generation, long-running video jobs, and
// the assistant chat session. Consumers own the interfaces; this package
// only satisfies them.
package uplink

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"sentientgrid/internal/config"
)

// Client talks to the Gemini API. The underlying SDK client is created
// lazily on first use so a missing credential surfaces as a request-time
// failure, not a startup crash.
type Client struct {
	mu     sync.Mutex
	client *genai.Client

	apiKey     string
	flashModel string
	proModel   string
	imageModel string
	videoModel string

	logger *zap.Logger
}

// New creates an uplink client from the Gemini config section.
func New(cfg config.GeminiConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		apiKey:     cfg.APIKey,
		flashModel: cfg.FlashModel,
		proModel:   cfg.ProModel,
		imageModel: cfg.ImageModel,
		videoModel: cfg.VideoModel,
		logger:     logger,
	}
	if c.flashModel == "" {
		c.flashModel = "gemini-3-flash-preview"
	}
	if c.proModel == "" {
		c.proModel = "gemini-3-pro-preview"
	}
	if c.imageModel == "" {
		c.imageModel = "gemini-2.5-flash-image"
	}
	if c.videoModel == "" {
		c.videoModel = "veo-3.1-fast-generate-preview"
	}
	return c
}

// ensureClient creates the SDK client on first use.
func (c *Client) ensureClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("uplink credential not configured (set GEMINI_API_KEY)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  c.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create uplink client: %w", err)
	}
	c.client = client
	return client, nil
}

func systemContent(instruction string) *genai.Content {
	return genai.NewContentFromText(instruction, genai.RoleUser)
}

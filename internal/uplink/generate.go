package uplink

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"sentientgrid/internal/scout"
)

// DiscoverTrend asks the grounded search model for a short trend label.
// An empty response is passed through; the orchestrator supplies the
// fallback label.
func (c *Client) DiscoverTrend(ctx context.Context, prompt string) (string, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx, c.proModel, genai.Text(prompt), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return "", fmt.Errorf("trend discovery failed: %w", err)
	}

	trend := resp.Text()
	c.logger.Debug("trend discovered", zap.Duration("elapsed", time.Since(start)), zap.Int("len", len(trend)))
	return trend, nil
}

// GenerateImage renders a preview image synchronously and returns it as a
// data URI, the opaque preview reference the catalog carries.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(ctx, c.imageModel, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("image generation failed: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return "data:image/png;base64," + base64.StdEncoding.EncodeToString(part.InlineData.Data), nil
			}
		}
	}
	return "", fmt.Errorf("image generation returned no inline data")
}

// videoJob wraps a long-running generation operation for polling.
type videoJob struct {
	client *Client
	op     *genai.GenerateVideosOperation
}

// SubmitVideo starts a long-running video generation job.
func (c *Client) SubmitVideo(ctx context.Context, prompt string) (scout.VideoJob, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	op, err := client.Models.GenerateVideos(ctx, c.videoModel, prompt, nil, &genai.GenerateVideosConfig{
		AspectRatio: "16:9",
		Resolution:  "720p",
	})
	if err != nil {
		return nil, fmt.Errorf("video submission failed: %w", err)
	}
	return &videoJob{client: c, op: op}, nil
}

// Poll refreshes the job status. When the job is done it returns the video
// URI with the API key appended, which is what the preview surface needs to
// fetch the artifact.
func (j *videoJob) Poll(ctx context.Context) (bool, string, error) {
	client, err := j.client.ensureClient(ctx)
	if err != nil {
		return false, "", err
	}

	op, err := client.Operations.GetVideosOperation(ctx, j.op, nil)
	if err != nil {
		return false, "", fmt.Errorf("video poll failed: %w", err)
	}
	j.op = op

	if !op.Done {
		return false, "", nil
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return true, "", fmt.Errorf("video job finished without a result")
	}
	uri := op.Response.GeneratedVideos[0].Video.URI
	return true, fmt.Sprintf("%s&key=%s", uri, j.client.apiKey), nil
}

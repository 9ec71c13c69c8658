package uplink

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"sentientgrid/internal/assistant"
	"sentientgrid/internal/oracle"
	"sentientgrid/internal/types"
)

// chatSession adapts a genai chat to the assistant session interface.
type chatSession struct {
	chat *genai.Chat
}

// StartSession creates the persistent assistant conversation. Called
// lazily on the first turn and reused thereafter.
func (c *Client) StartSession(ctx context.Context) (assistant.Session, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	chat, err := client.Chats.Create(ctx, c.flashModel, &genai.GenerateContentConfig{
		SystemInstruction: systemContent(assistant.SystemInstruction),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create assistant session: %w", err)
	}
	return &chatSession{chat: chat}, nil
}

// SendTurn sends one user turn and returns the assistant text.
func (s *chatSession) SendTurn(ctx context.Context, userText string) (string, error) {
	resp, err := s.chat.SendMessage(ctx, genai.Part{Text: userText})
	if err != nil {
		return "", fmt.Errorf("assistant turn failed: %w", err)
	}
	return resp.Text(), nil
}

// Consult answers a strategic question grounded in search and extracts the
// web sources the model cited.
func (c *Client) Consult(ctx context.Context, prompt string) (string, []types.GroundingSource, error) {
	client, err := c.ensureClient(ctx)
	if err != nil {
		return "", nil, err
	}

	resp, err := client.Models.GenerateContent(ctx, c.proModel, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: systemContent(oracle.SystemInstruction),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		return "", nil, fmt.Errorf("consult failed: %w", err)
	}

	var sources []types.GroundingSource
	if len(resp.Candidates) > 0 && resp.Candidates[0].GroundingMetadata != nil {
		for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
			if chunk.Web != nil && chunk.Web.URI != "" {
				sources = append(sources, types.GroundingSource{Title: chunk.Web.Title, URI: chunk.Web.URI})
			}
		}
	}
	return resp.Text(), sources, nil
}

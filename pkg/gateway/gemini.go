package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/harun/orca/pkg/conversation"
	"google.golang.org/api/option"
)

// Gemini calls the Google generative language API
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini backend
func NewGemini(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Gemini, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// Name returns the provider name
func (g *Gemini) Name() string {
	return "gemini"
}

// Close releases the client
func (g *Gemini) Close() error {
	return g.client.Close()
}

// Complete replays the conversation as chat history and sends the last user
// message.
func (g *Gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	gm := g.client.GenerativeModel(req.Model)
	if req.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.Temperature > 0 {
		gm.SetTemperature(float32(req.Temperature))
	}

	attachAt := lastUserIndex(req.Messages)
	history := make([]*genai.Content, 0, len(req.Messages))
	for i, msg := range req.Messages {
		parts := []genai.Part{genai.Text(msg.Content)}
		if i == attachAt && req.Attachment != nil {
			parts = append(parts, imageData(req))
		}
		role := "user"
		if msg.Role == conversation.RoleModel {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: parts})
	}

	// SendMessage needs a trailing user message
	var send []genai.Part
	if n := len(history); n > 0 && history[n-1].Role == "user" {
		send = history[n-1].Parts
		history = history[:n-1]
	} else {
		send = []genai.Part{genai.Text("Continue.")}
	}
	if attachAt < 0 && req.Attachment != nil {
		send = append(send, imageData(req))
	}

	cs := gm.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, send...)
	if err != nil {
		return nil, apiError(g.Name(), err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: no candidates returned")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	out := &Response{Text: text.String()}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func imageData(req Request) genai.Blob {
	return genai.ImageData(strings.TrimPrefix(req.Attachment.MediaType, "image/"), req.Attachment.Data)
}

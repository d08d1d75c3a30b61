package gateway

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/harun/orca/pkg/conversation"
)

// Anthropic calls the Claude messages API
type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic creates an Anthropic backend
func NewAnthropic(apiKey string, opts ...option.RequestOption) *Anthropic {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Anthropic{client: anthropic.NewClient(opts...)}
}

// Name returns the provider name
func (a *Anthropic) Name() string {
	return "anthropic"
}

// Complete sends the conversation and returns the text blocks of the reply
func (a *Anthropic) Complete(ctx context.Context, req Request) (*Response, error) {
	attachAt := lastUserIndex(req.Messages)

	messages := make([]anthropic.MessageParam, 0, len(req.Messages)+1)
	for i, msg := range req.Messages {
		blocks := []anthropic.ContentBlockParamUnion{}
		if i == attachAt && req.Attachment != nil {
			blocks = append(blocks, imageBlock(req))
		}
		if strings.TrimSpace(msg.Content) != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		if len(blocks) == 0 {
			continue
		}

		if msg.Role == conversation.RoleModel {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}
	if attachAt < 0 && req.Attachment != nil {
		messages = append(messages, anthropic.NewUserMessage(imageBlock(req)))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(req.MaxTokens),
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	response, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, apiError(a.Name(), err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}

	return &Response{
		Text:         text.String(),
		InputTokens:  int(response.Usage.InputTokens),
		OutputTokens: int(response.Usage.OutputTokens),
	}, nil
}

func imageBlock(req Request) anthropic.ContentBlockParamUnion {
	return anthropic.NewImageBlockBase64(req.Attachment.MediaType, base64.StdEncoding.EncodeToString(req.Attachment.Data))
}

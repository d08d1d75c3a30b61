package gateway

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/harun/orca/pkg/conversation"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI calls the chat completions API
type OpenAI struct {
	client openai.Client
}

// NewOpenAI creates an OpenAI backend
func NewOpenAI(apiKey string, opts ...option.RequestOption) *OpenAI {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAI{client: openai.NewClient(opts...)}
}

// Name returns the provider name
func (o *OpenAI) Name() string {
	return "openai"
}

// Complete sends the conversation and returns the first choice
func (o *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	attachAt := lastUserIndex(req.Messages)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	for i, msg := range req.Messages {
		switch {
		case msg.Role == conversation.RoleModel:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case i == attachAt && req.Attachment != nil:
			messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(msg.Content),
				imagePart(req),
			}))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	if attachAt < 0 && req.Attachment != nil {
		messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{imagePart(req)}))
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	response, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, apiError(o.Name(), err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("openai: no response choices returned")
	}

	return &Response{
		Text:         response.Choices[0].Message.Content,
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
	}, nil
}

func imagePart(req Request) openai.ChatCompletionContentPartUnionParam {
	url := fmt.Sprintf("data:%s;base64,%s", req.Attachment.MediaType, base64.StdEncoding.EncodeToString(req.Attachment.Data))
	return openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url})
}

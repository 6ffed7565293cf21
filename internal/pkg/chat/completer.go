package chat

import (
	"context"
	"errors"

	"github.com/coachai-app/coachai/internal/pkg/env"
	"github.com/sashabaranov/go-openai"
)

// PromptMessage is one turn of the conversation as sent to the model.
type PromptMessage struct {
	Role    string
	Content string
}

// Completion is the model's reply plus usage accounting.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completer abstracts the chat-completion API so the service can run
// against a fake in tests.
type Completer interface {
	Complete(ctx context.Context, messages []PromptMessage) (*Completion, error)
}

const (
	completionModel       = openai.GPT4oMini
	completionMaxTokens   = 1000
	completionTemperature = 0.7
)

// openAICompleter implements Completer against the OpenAI API.
type openAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter builds the production completion client from
// OPENAI_API_KEY.
func NewOpenAICompleter() (Completer, error) {
	apiKey := env.GetEnv("OPENAI_API_KEY", "")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is not configured")
	}
	return &openAICompleter{
		client: openai.NewClient(apiKey),
		model:  completionModel,
	}, nil
}

func (c *openAICompleter) Complete(ctx context.Context, messages []PromptMessage) (*Completion, error) {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		MaxTokens:   completionMaxTokens,
		Temperature: completionTemperature,
	})
	if err != nil {
		return nil, err
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return &Completion{
		Content:          content,
		Model:            c.model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/care-records/internal/core/domain"
	"github.com/kirillkom/care-records/internal/infrastructure/resilience"
)

const defaultRequestTimeout = 60 * time.Second

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	BaseURL            string
	APIKey             string
	Model              string
	RequestTimeout     time.Duration
	ResilienceExecutor *resilience.Executor
	HTTPClient         *http.Client
}

func New(options Options) *Client {
	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(options.BaseURL, "/"),
		apiKey:     options.APIKey,
		model:      options.Model,
		httpClient: httpClient,
		executor:   options.ResilienceExecutor,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize sends one user message built from text and audience and
// returns the first choice. The text is cut to maxInputRunes first.
func (c *Client) Summarize(ctx context.Context, text string, audience domain.AudienceMode) (string, error) {
	request := chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: buildSummaryPrompt(text, audience)}},
	}

	var summary string
	call := func(callCtx context.Context) error {
		var response chatResponse
		if err := c.postJSON(callCtx, "/chat/completions", request, &response, "chat completion"); err != nil {
			return err
		}
		content, err := firstContent(response)
		if err != nil {
			return err
		}
		summary = content
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "summarizer.chat_completion", call, classifyError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapError("summarize", err)
	}
	return summary, nil
}

var errMalformedReply = errors.New("reply has no choices[0].message.content")

func firstContent(response chatResponse) (string, error) {
	if len(response.Choices) == 0 {
		return "", errMalformedReply
	}
	message := response.Choices[0].Message
	if message == nil || message.Content == nil {
		return "", errMalformedReply
	}
	return strings.TrimSpace(*message.Content), nil
}

package structured

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// GeminiInvoker calls the Gemini API through the genai SDK. The SDK client
// is created on first use so a missing key never fails startup.
type GeminiInvoker struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiInvoker creates an invoker for model
func NewGeminiInvoker(apiKey, model string) *GeminiInvoker {
	return &GeminiInvoker{apiKey: apiKey, model: model}
}

func (g *GeminiInvoker) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	g.client = client
	return client, nil
}

// Invoke sends prompt with the system instruction and requests JSON output
func (g *GeminiInvoker) Invoke(ctx context.Context, prompt string, systemInstruction string) (string, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return "", toInvokeError(err)
	}
	return resp.Text(), nil
}

func toInvokeError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &InvokeError{Code: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &InvokeError{Code: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message, Err: err}
	}
	return &InvokeError{Message: err.Error(), Err: err}
}

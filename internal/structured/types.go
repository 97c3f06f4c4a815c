package structured

import (
	"context"
	"fmt"
)

// Invoker calls the generative model. Implementations must request
// JSON-typed output and return the raw reply text.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, systemInstruction string) (string, error)
}

// InvokerFunc adapts a function to Invoker
type InvokerFunc func(ctx context.Context, prompt string, systemInstruction string) (string, error)

// Invoke calls f
func (f InvokerFunc) Invoke(ctx context.Context, prompt string, systemInstruction string) (string, error) {
	return f(ctx, prompt, systemInstruction)
}

// InvokeError is a structured failure reported by the model API.
type InvokeError struct {
	Code    int    // HTTP status, 0 if unknown
	Status  string // e.g. RESOURCE_EXHAUSTED
	Message string
	Err     error
}

func (e *InvokeError) Error() string {
	switch {
	case e.Code != 0 && e.Status != "":
		return fmt.Sprintf("model error %d %s: %s", e.Code, e.Status, e.Message)
	case e.Code != 0:
		return fmt.Sprintf("model error %d: %s", e.Code, e.Message)
	}
	return "model error: " + e.Message
}

func (e *InvokeError) Unwrap() error {
	return e.Err
}

package gemini

import (
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kart-io/docqa/pkg/llm"
)

type fakeAPIError struct{ code int }

func (e fakeAPIError) Error() string { return "googleapi: error" }
func (e fakeAPIError) HTTPCode() int { return e.code }

func TestNewProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewProvider(map[string]any{"chat_model": "gemini-1.5-pro"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind llm.ErrorKind
	}{
		{"grpc resource exhausted", status.Error(codes.ResourceExhausted, "Quota exceeded"), llm.KindRateLimited},
		{"http 429", fakeAPIError{code: 429}, llm.KindRateLimited},
		{"http 500", fakeAPIError{code: 500}, llm.KindOther},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad model"), llm.KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pe *llm.ProviderError
			require.True(t, errors.As(wrap("generate", tt.err), &pe))
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, ProviderName, pe.Provider)
		})
	}
}

func TestResponseText(t *testing.T) {
	assert.Empty(t, responseText(nil))
	assert.Empty(t, responseText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("The sky "), genai.Text("is blue.")}},
		}},
	}
	assert.Equal(t, "The sky is blue.", responseText(resp))
}

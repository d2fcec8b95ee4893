package resilience

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/llm"
)

type flakyChat struct {
	calls int32
	errs  []error
}

func (f *flakyChat) Name() string { return "flaky" }

func (f *flakyChat) Generate(_ context.Context, _ string) (string, error) {
	n := int(atomic.AddInt32(&f.calls, 1)) - 1
	if n < len(f.errs) && f.errs[n] != nil {
		return "", f.errs[n]
	}
	return "ok", nil
}

type fixedEmbedder struct {
	calls int32
	err   error
}

func (f *fixedEmbedder) Name() string { return "fixed" }

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func (f *fixedEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	v, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func fastRetry(attempts int) *RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = attempts
	cfg.InitialDelay = time.Millisecond
	return cfg
}

func serverErr() error {
	return llm.WrapError("flaky", "generate", http.StatusInternalServerError, errors.New("boom"))
}

func rateLimited() error {
	return llm.WrapError("flaky", "generate", http.StatusTooManyRequests, errors.New("quota"))
}

func TestRetryWithBackoff_EventualSuccess(t *testing.T) {
	chat := &flakyChat{errs: []error{serverErr(), serverErr()}}
	rc := NewResilientChatProvider(chat, &Policy{Retry: fastRetry(3)})

	out, err := rc.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), atomic.LoadInt32(&chat.calls))
}

func TestRetryWithBackoff_DefaultDoesNotRetry(t *testing.T) {
	chat := &flakyChat{errs: []error{serverErr()}}
	rc := NewResilientChatProvider(chat, nil)

	_, err := rc.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&chat.calls))
	assert.Equal(t, "flaky", rc.Name())
	assert.Equal(t, "disabled", rc.BreakerState())
}

func TestRetryWithBackoff_RateLimitedNotRetried(t *testing.T) {
	chat := &flakyChat{errs: []error{rateLimited(), rateLimited()}}
	rc := NewResilientChatProvider(chat, &Policy{Retry: fastRetry(5)})

	_, err := rc.Generate(context.Background(), "p")
	assert.True(t, llm.IsRateLimited(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&chat.calls))
}

func TestRetryWithBackoff_MaxAttemptsReached(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(2), func() error {
		calls++
		return serverErr()
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retry attempts (2)")
	assert.Equal(t, 2, calls)

	var pe *llm.ProviderError
	assert.ErrorAs(t, err, &pe)
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(5)
	cfg.InitialDelay = time.Hour

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := RetryWithBackoff(ctx, cfg, func() error {
		calls++
		return serverErr()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	emb := &fixedEmbedder{err: serverErr()}
	breaker := DefaultBreakerConfig()
	breaker.Timeout = time.Hour
	re := NewResilientEmbeddingProvider(emb, &Policy{Breaker: breaker})

	for i := 0; i < 3; i++ {
		_, err := re.Embed(context.Background(), []string{"a"})
		require.Error(t, err)
	}
	assert.Equal(t, "open", re.BreakerState())

	_, err := re.EmbedSingle(context.Background(), "a")
	var pe *llm.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusServiceUnavailable, pe.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&emb.calls))
}

func TestBreaker_RateLimitedDoesNotTrip(t *testing.T) {
	errs := make([]error, 6)
	for i := range errs {
		errs[i] = llm.WrapError("flaky", "generate", http.StatusTooManyRequests,
			errors.New("RESOURCE_EXHAUSTED: quota exceeded"))
	}
	chat := &flakyChat{errs: errs}
	breaker := DefaultBreakerConfig()
	breaker.Timeout = time.Hour
	rc := NewResilientChatProvider(chat, &Policy{Retry: DefaultRetryConfig(), Breaker: breaker})

	for i := range errs {
		_, err := rc.Generate(context.Background(), "p")
		require.Error(t, err)
		assert.True(t, llm.IsRateLimited(err), "call %d: %v", i+1, err)
	}
	assert.Equal(t, "closed", rc.BreakerState())
	assert.Equal(t, int32(len(errs)), atomic.LoadInt32(&chat.calls))

	out, err := rc.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0, 1))

	emb := &fixedEmbedder{}
	re := NewResilientEmbeddingProvider(emb, &Policy{RateLimit: 1000, Burst: 2})
	v, err := re.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, v, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := NewResilientEmbeddingProvider(&fixedEmbedder{}, &Policy{RateLimit: 0.001, Burst: 1})
	_, _ = slow.Embed(context.Background(), []string{"x"}) // consume burst
	_, err = slow.Embed(ctx, []string{"y"})
	assert.Error(t, err)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(rateLimited()))
	assert.True(t, IsRetryableError(serverErr()))
	assert.False(t, IsRetryableError(llm.WrapError("x", "embed", http.StatusBadRequest, errors.New("bad"))))
	assert.False(t, IsRetryableError(errors.New("plain")))
}

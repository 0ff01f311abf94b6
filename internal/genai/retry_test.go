package genai

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clientela-ai/clientela/pkg/logging"
)

type scriptedClient struct {
	calls     int
	responses []Response
	errs      []error
}

func (s *scriptedClient) Generate(ctx context.Context, req Request) (Response, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.errs) {
		idx = len(s.errs) - 1
	}
	return s.responses[idx], s.errs[idx]
}

func TestRetryClientSucceedsAfterOverload(t *testing.T) {
	inner := &scriptedClient{
		responses: []Response{{}, {}, {Text: "hola"}},
		errs:      []error{ErrOverloaded, ErrOverloaded, nil},
	}
	client := NewRetryClient(inner, logging.Default(), WithBaseDelay(time.Millisecond))

	resp, err := client.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hola", resp.Text)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryClientExhaustsAttempts(t *testing.T) {
	inner := &scriptedClient{
		responses: []Response{{}},
		errs:      []error{ErrOverloaded},
	}
	client := NewRetryClient(inner, logging.Default(), WithBaseDelay(time.Millisecond))

	_, err := client.Generate(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOverloaded)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryClientDoesNotRetryTerminalErrors(t *testing.T) {
	terminal := errors.New("invalid request")
	inner := &scriptedClient{
		responses: []Response{{}},
		errs:      []error{terminal},
	}
	client := NewRetryClient(inner, logging.Default(), WithBaseDelay(time.Millisecond))

	_, err := client.Generate(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryClientRetriesTransportErrors(t *testing.T) {
	netErr := &net.DNSError{Err: "timeout", IsTimeout: true}
	inner := &scriptedClient{
		responses: []Response{{}, {Text: "ok"}},
		errs:      []error{netErr, nil},
	}
	client := NewRetryClient(inner, logging.Default(), WithBaseDelay(time.Millisecond))

	resp, err := client.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 2, inner.calls)
}

func TestRetryClientStopsOnCancelledContext(t *testing.T) {
	inner := &scriptedClient{
		responses: []Response{{}},
		errs:      []error{ErrOverloaded},
	}
	client := NewRetryClient(inner, logging.Default(), WithBaseDelay(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Generate(ctx, Request{Prompt: "hi"})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, inner.calls)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not honor context cancellation")
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrOverloaded))
	assert.True(t, IsRetryable(&net.DNSError{Err: "refused"}))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(errors.New("bad prompt")))
	assert.False(t, IsRetryable(nil))
}

func TestClassifyStatusText(t *testing.T) {
	cases := []struct {
		text       string
		overloaded bool
	}{
		{"the model is overloaded", true},
		{"Resource has been exhausted", true},
		{"HTTP 429 Too Many Requests", true},
		{"service unavailable", true},
		{"invalid argument", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.overloaded, classifyStatusText(tc.text), tc.text)
	}
}

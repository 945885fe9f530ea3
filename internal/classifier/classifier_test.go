package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookbench/hookbench/internal/ai"
	"github.com/hookbench/hookbench/internal/logging"
)

func testLog() *logging.Logger {
	return logging.New(nil, "silent", "")
}

// --- Static table tests ---

func TestClassify_StaticHit(t *testing.T) {
	c := New(nil, time.Second, testLog())

	cl := c.Classify(context.Background(), "stripe", "card_declined", "Your card was declined.")

	assert.Equal(t, SourceStatic, cl.Source)
	assert.Contains(t, cl.Explanation, "declined by the issuing bank")
	assert.NotEmpty(t, cl.FixSteps)
}

func TestClassify_StaticTakesPriorityOverAI(t *testing.T) {
	called := false
	client := &ai.MockClient{
		GenerateFunc: func(ctx context.Context, req ai.Request) (*ai.Response, error) {
			called = true
			return &ai.Response{Text: `{"explanation":"ai"}`}, nil
		},
	}
	c := New(client, time.Second, testLog())

	cl := c.Classify(context.Background(), "github", "401", "Bad credentials")

	assert.Equal(t, SourceStatic, cl.Source)
	assert.False(t, called, "static hit should not reach the ai client")
}

// --- AI fallback tests ---

func TestClassify_AIFallbackStructured(t *testing.T) {
	client := &ai.MockClient{
		GenerateFunc: func(ctx context.Context, req ai.Request) (*ai.Response, error) {
			assert.Contains(t, req.Prompt, "acme")
			assert.Equal(t, "weird failure", req.Context)
			return &ai.Response{Text: `{"explanation":"the widget is missing","fixSteps":["create the widget"]}`}, nil
		},
	}
	c := New(client, time.Second, testLog())

	cl := c.Classify(context.Background(), "acme", "widget_missing", "weird failure")

	assert.Equal(t, SourceAI, cl.Source)
	assert.Equal(t, "the widget is missing", cl.Explanation)
	assert.Equal(t, []string{"create the widget"}, cl.FixSteps)
}

func TestClassify_AIFallbackUnstructuredText(t *testing.T) {
	client := &ai.MockClient{
		GenerateFunc: func(ctx context.Context, req ai.Request) (*ai.Response, error) {
			return &ai.Response{Text: "This usually means the account is suspended."}, nil
		},
	}
	c := New(client, time.Second, testLog())

	cl := c.Classify(context.Background(), "acme", "403", "")

	assert.Equal(t, SourceAI, cl.Source)
	assert.Equal(t, "This usually means the account is suspended.", cl.Explanation)
}

func TestClassify_AIErrorFallsBackToRaw(t *testing.T) {
	client := &ai.MockClient{
		GenerateFunc: func(ctx context.Context, req ai.Request) (*ai.Response, error) {
			return nil, errors.New("capability offline")
		},
	}
	c := New(client, time.Second, testLog())

	cl := c.Classify(context.Background(), "acme", "500", "internal error text")

	assert.Equal(t, SourceRaw, cl.Source)
	assert.Equal(t, "internal error text", cl.Explanation)
}

func TestClassify_AITimeoutFallsBackToRaw(t *testing.T) {
	client := &ai.MockClient{
		GenerateFunc: func(ctx context.Context, req ai.Request) (*ai.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	c := New(client, 10*time.Millisecond, testLog())

	cl := c.Classify(context.Background(), "acme", "500", "raw message")

	assert.Equal(t, SourceRaw, cl.Source)
	assert.Equal(t, "raw message", cl.Explanation)
}

// --- No-client tests ---

func TestClassify_UnknownCodeWithoutAI(t *testing.T) {
	c := New(nil, time.Second, testLog())

	cl := c.Classify(context.Background(), "stripe", "some_new_code", "the raw provider message")

	require.NotNil(t, cl)
	assert.Equal(t, SourceRaw, cl.Source)
	assert.Equal(t, "the raw provider message", cl.Explanation)
}

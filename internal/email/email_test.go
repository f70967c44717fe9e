package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = Request{FairRate: "178.57", CurrentRate: "50", Skill: "Go development", ClientLocation: "USA"}

func TestDraftWithoutCompleterFallsBack(t *testing.T) {
	g := NewGenerator(nil, 0, logr.Discard())
	d, err := g.Draft(context.Background(), sample)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.True(t, d.Fallback)
	assert.Contains(t, d.Email, "Subject: Rate Update for Go development Services")
	assert.Contains(t, d.Email, "$178.57/hour")
}

type stubCompleter struct {
	text  string
	err   error
	delay time.Duration
	got   []Message
}

func (s *stubCompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	s.got = messages
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.text, s.err
}

func TestDraftUsesCompleter(t *testing.T) {
	stub := &stubCompleter{text: "Dear client, ..."}
	d, err := NewGenerator(stub, time.Second, logr.Discard()).Draft(context.Background(), sample)
	require.NoError(t, err)
	assert.False(t, d.Fallback)
	assert.Equal(t, "Dear client, ...", d.Email)
	require.Len(t, stub.got, 2)
	assert.Equal(t, "system", stub.got[0].Role)
	assert.Contains(t, stub.got[1].Content, "from $50 to $178.57 for Go development services")
}

func TestDraftFallsBackOnErrorAndTimeout(t *testing.T) {
	d, err := NewGenerator(&stubCompleter{err: errors.New("quota")}, time.Second, logr.Discard()).Draft(context.Background(), sample)
	assert.Error(t, err)
	assert.True(t, d.Fallback)

	start := time.Now()
	d, err = NewGenerator(&stubCompleter{text: "late", delay: time.Minute}, 30*time.Millisecond, logr.Discard()).Draft(context.Background(), sample)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, d.Fallback)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestOpenAIClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultModel, body.Model)
		assert.Equal(t, 300, body.MaxTokens)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "", srv.URL+"/", time.Second)
	text, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestOpenAIClientSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient("sk-bad", "", srv.URL, time.Second).Complete(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
}

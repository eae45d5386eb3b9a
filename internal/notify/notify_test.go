package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/freewebtopdf/filesentry/internal/domain"
)

func sampleMatch() domain.RuleMatch {
	return domain.RuleMatch{
		RuleID:        "r1",
		RuleName:      "log burst",
		RuleType:      domain.RuleTypeThreshold,
		Timestamp:     1700000000000,
		Summary:       `Rule "log burst" fired`,
		Reason:        "3 .log files in the last 60s (threshold: 3)",
		Path:          "logs/c.log",
		EventType:     domain.EventModified,
		Count:         domain.IntPtr(3),
		WindowSeconds: domain.IntPtr(60),
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	require.NoError(t, n.Notify(context.Background(), sampleMatch()))
	assert.Equal(t, "log", n.Name())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "r1", line["rule_id"])
	assert.Equal(t, "logs/c.log", line["path"])
	assert.Equal(t, float64(3), line["count"])
	assert.Equal(t, `Rule "log burst" fired`, line["message"])
}

func TestWebhookNotifier(t *testing.T) {
	var received WebhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, 0)
	require.NoError(t, n.Notify(context.Background(), sampleMatch()))

	assert.Equal(t, "filesentry", received.Source)
	assert.Equal(t, "r1", received.Match.RuleID)
	assert.Equal(t, 3, *received.Match.Count)
	assert.NotZero(t, received.SentAt)
}

func TestWebhookNotifier_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewWebhookNotifier(server.URL, 0).Notify(context.Background(), sampleMatch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, NewWebhookNotifier(server.URL, 0).Notify(ctx, sampleMatch()))
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, match domain.RuleMatch) error {
	args := m.Called(ctx, match)
	return args.Error(0)
}

func (m *mockNotifier) Name() string { return "mock" }

func TestMulti_TriesEveryNotifier(t *testing.T) {
	failing := &mockNotifier{}
	failing.On("Notify", mock.Anything, mock.Anything).Return(errors.New("down"))
	ok := &mockNotifier{}
	ok.On("Notify", mock.Anything, mock.Anything).Return(nil)

	err := Multi{failing, ok}.Notify(context.Background(), sampleMatch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")

	failing.AssertNumberOfCalls(t, "Notify", 1)
	ok.AssertNumberOfCalls(t, "Notify", 1)

	assert.NoError(t, Multi{ok}.Notify(context.Background(), sampleMatch()))
}

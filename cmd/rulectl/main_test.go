package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/freewebtopdf/filesentry/internal/domain"
	"github.com/freewebtopdf/filesentry/internal/storage"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeRules(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rules.json")

	store := storage.NewStore(path)
	require.NoError(t, store.Load(ctx))
	_, err := store.AddRule(ctx, domain.RuleInput{
		Condition: "Alert when .env files are deleted",
		Compiled: domain.CompiledRule{
			Type:  domain.RuleTypePattern,
			Match: domain.MatchFilter{Extensions: []string{".env"}, EventTypes: []domain.EventType{domain.EventDeleted}},
		},
		Source: domain.SourceLLM,
	})
	require.NoError(t, err)
	_, err = store.AddRule(ctx, domain.RuleInput{
		Name: "TypeScript churn",
		Compiled: domain.CompiledRule{
			Type:          domain.RuleTypeThreshold,
			Match:         domain.MatchFilter{Extensions: []string{".ts"}},
			WindowSeconds: domain.IntPtr(600),
			Count:         domain.IntPtr(5),
		},
		Source: domain.SourceManual,
	})
	require.NoError(t, err)
	require.NoError(t, store.Close(ctx))
	return path
}

// fakeOllama answers every generate call with response
func fakeOllama(t *testing.T, response string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"model": "llama3.1", "response": response, "done": true})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIntentCommand(t *testing.T) {
	out, err := execute(t, "intent", "Alert when 5 or more .ts files change in 10 minutes")
	require.NoError(t, err)

	var got domain.RuleIntent
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{".ts"}, got.Extensions)
	require.NotNil(t, got.Count)
	assert.Equal(t, 5, *got.Count)
	require.NotNil(t, got.WindowSeconds)
	assert.Equal(t, 600, *got.WindowSeconds)
}

func TestIntentCommand_YAML(t *testing.T) {
	out, err := execute(t, "intent", "-o", "yaml", "Alert when .env files are deleted")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, []any{"deleted"}, got["eventTypes"])
	assert.Equal(t, []any{".env"}, got["extensions"])
}

func TestCompileCommand(t *testing.T) {
	t.Run("compiled and valid", func(t *testing.T) {
		srv := fakeOllama(t, `{"type":"pattern","match":{"extensions":[".env"],"eventTypes":["deleted"]}}`)

		out, err := execute(t, "compile", "--endpoint", srv.URL, "--retries", "0", "Alert when .env files are deleted")
		require.NoError(t, err)

		var preview compilePreview
		require.NoError(t, json.Unmarshal([]byte(out), &preview))
		require.NotNil(t, preview.Result.Rule)
		assert.Equal(t, domain.RuleTypePattern, preview.Result.Rule.Type)
		require.NotNil(t, preview.Validation)
		assert.True(t, preview.Validation.Valid)
	})

	t.Run("model reject exits non-zero", func(t *testing.T) {
		srv := fakeOllama(t, `{"reject":{"reason":"Not a file rule","details":"mentions CPU"}}`)

		out, err := execute(t, "compile", "--endpoint", srv.URL, "--retries", "0", "Alert when CPU is high")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Not a file rule")
		assert.Contains(t, out, "mentions CPU")
	})

	t.Run("unreachable model", func(t *testing.T) {
		_, err := execute(t, "compile", "--endpoint", "http://127.0.0.1:1", "--retries", "0", "Alert when .env files are deleted")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LLM unavailable")
	})
}

func TestRulesList(t *testing.T) {
	path := writeRules(t)

	out, err := execute(t, "rules", "list", "--file", path)
	require.NoError(t, err)

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Alert when .env files are deleted")
	assert.Contains(t, out, "TypeScript churn")
	assert.Contains(t, out, "threshold")
}

func TestRulesExport(t *testing.T) {
	path := writeRules(t)

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "rules", "export", "--file", path)
		require.NoError(t, err)

		var doc struct {
			Version int           `json:"version"`
			Rules   []domain.Rule `json:"rules"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &doc))
		assert.Equal(t, 1, doc.Version)
		require.Len(t, doc.Rules, 2)
		assert.Equal(t, "TypeScript churn", doc.Rules[1].Name)
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := execute(t, "rules", "export", "--file", path, "-o", "yaml")
		require.NoError(t, err)

		var doc struct {
			Rules []domain.Rule `yaml:"rules"`
		}
		require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
		require.Len(t, doc.Rules, 2)
		require.NotNil(t, doc.Rules[1].Count)
		assert.Equal(t, 5, *doc.Rules[1].Count)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := execute(t, "rules", "export", "--file", path, "-o", "xml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported output format")
	})
}

package ai_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"github.com/robalyx/neurobot/internal/ai"
	"github.com/robalyx/neurobot/internal/ai/client"
	"github.com/robalyx/neurobot/internal/redis"
	"github.com/robalyx/neurobot/internal/setup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// completion builds a chat completion response whose content is content.
func completion(content string) string {
	body, _ := sonic.MarshalString(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return body
}

func newOpenAIServer(t *testing.T, handler http.HandlerFunc) *client.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return client.NewClient(&config.OpenAI{
		APIKey:        "test",
		BaseURL:       server.URL + "/",
		Model:         "gpt-4o",
		MaxConcurrent: 2,
	}, zap.NewNop())
}

func TestOpenAITranslator(t *testing.T) {
	t.Parallel()

	chat := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))

		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "こんにちは")

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion(`{"text":"Hello"}`))
	})

	translator := ai.NewOpenAITranslator(chat, zap.NewNop())
	text, err := translator.Translate(t.Context(), "こんにちは")
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, "gpt-4o", translator.Name())
}

func TestOpenAITranslatorMalformed(t *testing.T) {
	t.Parallel()

	chat := newOpenAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion(`not json`))
	})

	_, err := ai.NewOpenAITranslator(chat, zap.NewNop()).Translate(t.Context(), "テスト")
	require.ErrorIs(t, err, ai.ErrTranslationFailed)
}

func TestSummarizer(t *testing.T) {
	t.Parallel()

	chat := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/moderations") {
			_, _ = io.WriteString(w, `{"id":"modr-1","model":"omni-moderation-latest","results":[{"flagged":true}]}`)
			return
		}
		_, _ = io.WriteString(w, completion(`{"text":"They talked about cats."}`))
	})

	summarizer := ai.NewChatSummarizer(chat, zap.NewNop())

	summary, err := summarizer.Summarize(t.Context(), "a: cats\nb: yes cats")
	require.NoError(t, err)
	assert.Equal(t, "They talked about cats.", summary)

	flagged, err := summarizer.Flagged(t.Context(), summary)
	require.NoError(t, err)
	assert.True(t, flagged)
}

func TestDeepLTranslator(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DeepL-Auth-Key secret", r.Header.Get("Authorization"))

		var req struct {
			SourceLang string   `json:"source_lang"`
			TargetLang string   `json:"target_lang"`
			Text       []string `json:"text"`
		}
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, sonic.Unmarshal(body, &req))
		assert.Equal(t, "JA", req.SourceLang)
		assert.Equal(t, "EN-US", req.TargetLang)

		if req.Text[0] == "fail" {
			http.Error(w, "quota exceeded", http.StatusForbidden)
			return
		}
		_, _ = io.WriteString(w, `{"translations":[{"detected_source_language":"JA","text":"Good morning"}]}`)
	}))
	t.Cleanup(server.Close)

	translator := ai.NewDeepLTranslator(&config.DeepL{
		APIKey:     "secret",
		Endpoint:   server.URL,
		SourceLang: "JA",
		TargetLang: "EN-US",
	}, server.Client(), zap.NewNop())

	text, err := translator.Translate(t.Context(), "おはよう")
	require.NoError(t, err)
	assert.Equal(t, "Good morning", text)

	_, err = translator.Translate(t.Context(), "fail")
	require.ErrorIs(t, err, ai.ErrTranslationFailed)
}

type countingTranslator struct {
	calls atomic.Int32
}

func (c *countingTranslator) Name() string { return "counting" }

func (c *countingTranslator) Translate(_ context.Context, text string) (string, error) {
	c.calls.Add(1)
	return strings.ToUpper(text), nil
}

func TestCachedTranslator(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rc, err := rueidis.NewClient(rueidis.ClientOption{InitAddress: []string{mr.Addr()}, DisableCache: true})
	require.NoError(t, err)
	t.Cleanup(rc.Close)

	inner := &countingTranslator{}
	translator := ai.NewCachedTranslator(inner, redis.NewCache(rc, zap.NewNop()))

	for range 3 {
		text, err := translator.Translate(t.Context(), "abc")
		require.NoError(t, err)
		assert.Equal(t, "ABC", text)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	mr.FastForward(25 * time.Hour)

	_, err = translator.Translate(t.Context(), "abc")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestTranslationCacheKey(t *testing.T) {
	t.Parallel()

	a := ai.TranslationCacheKey("DeepL", "text")
	assert.Equal(t, a, ai.TranslationCacheKey("DeepL", "text"))
	assert.NotEqual(t, a, ai.TranslationCacheKey("gpt-4o", "text"))
	assert.True(t, strings.HasPrefix(a, "translation:"))
}

package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/robalyx/neurobot/internal/setup/config"
	"go.uber.org/zap"
)

type deeplRequest struct {
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
	Text       []string `json:"text"`
}

type deeplResponse struct {
	Translations []struct {
		Text string `json:"text"`
	} `json:"translations"`
}

// DeepLTranslator translates through the DeepL REST API.
type DeepLTranslator struct {
	cfg    *config.DeepL
	http   *http.Client
	logger *zap.Logger
}

// NewDeepLTranslator creates a DeepL translator. A nil httpClient uses a
// client with a 30 second timeout.
func NewDeepLTranslator(cfg *config.DeepL, httpClient *http.Client, logger *zap.Logger) *DeepLTranslator {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &DeepLTranslator{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.Named("translator_deepl"),
	}
}

// Name returns the label shown next to relayed translations.
func (t *DeepLTranslator) Name() string {
	return "DeepL"
}

// Translate translates text.
func (t *DeepLTranslator) Translate(ctx context.Context, text string) (string, error) {
	body, err := sonic.Marshal(deeplRequest{
		SourceLang: t.cfg.SourceLang,
		TargetLang: t.cfg.TargetLang,
		Text:       []string{text},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode DeepL request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create DeepL request: %w", err)
	}
	req.Header.Set("Authorization", "DeepL-Auth-Key "+t.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranslationFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read DeepL response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.logger.Error("DeepL returned an error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", data))
		return "", fmt.Errorf("%w: DeepL returned status code %d", ErrTranslationFailed, resp.StatusCode)
	}

	var decoded deeplResponse
	if err := sonic.Unmarshal(data, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode DeepL response: %w", err)
	}
	if len(decoded.Translations) == 0 {
		return "", fmt.Errorf("%w: DeepL returned no translations", ErrTranslationFailed)
	}

	return decoded.Translations[0].Text, nil
}

// Package ping reports gateway latency and Discord's API response time.
package ping

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/disgo/discord"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/redis"
	"go.uber.org/zap"
)

const (
	// MetricsURL is Discord's public API response time metric.
	MetricsURL = "https://discordstatus.com/metrics-display/5k2rt9f7pmny/day.json"

	metricsCacheKey = "ping:discord_api"
	metricsCacheTTL = 60 * time.Second
)

// Option configures the feature.
type Option func(*Feature)

// WithMetricsURL replaces the metrics endpoint.
func WithMetricsURL(url string) Option {
	return func(f *Feature) { f.metricsURL = url }
}

// WithHTTPClient replaces the client used for the metrics endpoint.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Feature) { f.http = client }
}

type dayMetric struct {
	Summary struct {
		Mean float64 `json:"mean"`
	} `json:"summary"`
}

// Feature implements /ping.
type Feature struct {
	gateway    gateway.Gateway
	cache      *redis.Cache
	http       *http.Client
	metricsURL string
	logger     *zap.Logger
}

// New creates the ping feature.
func New(deps feature.Deps, opts ...Option) *Feature {
	f := &Feature{
		gateway:    deps.Gateway,
		cache:      deps.Cache,
		http:       &http.Client{Timeout: 10 * time.Second},
		metricsURL: MetricsURL,
		logger:     deps.Logger.Named("ping"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Feature) Name() string { return "ping" }

func (f *Feature) Commands() []discord.ApplicationCommandCreate {
	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:                     "ping",
			Description:              "Gets the ping of the client and Discord's API",
			DefaultMemberPermissions: feature.Permissions(discord.PermissionManageMessages),
			Contexts:                 feature.Anywhere,
		},
	}
}

// apiPing fetches the mean API response time in milliseconds.
func (f *Feature) apiPing(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.metricsURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch discord metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("discord metrics returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read discord metrics: %w", err)
	}

	var metric dayMetric
	if err := sonic.Unmarshal(body, &metric); err != nil {
		return 0, fmt.Errorf("failed to decode discord metrics: %w", err)
	}
	return int(math.Round(metric.Summary.Mean)), nil
}

func (f *Feature) HandleCommand(ctx context.Context, i gateway.Interaction) error {
	clientText := "N/A (retry in a minute)"
	if latency := f.gateway.Latency(); latency > 0 {
		clientText = fmt.Sprintf("%dms", latency.Milliseconds())
	}

	apiText := "N/A (failed)"
	ms, err := redis.Remember(ctx, f.cache, metricsCacheKey, metricsCacheTTL, f.apiPing)
	if err != nil {
		f.logger.Warn("Failed to get Discord API ping", zap.Error(err))
	} else {
		apiText = fmt.Sprintf("%dms", ms)
	}

	return i.Reply(ctx, gateway.Content(fmt.Sprintf(
		"Client WebSocket ping: `%s`\nDiscord API ping: `%s`", clientText, apiText,
	)))
}

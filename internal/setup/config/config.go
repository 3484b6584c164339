package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/mo"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrMissingToken          = errors.New("discord token is not set")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v0.4.0"

// CurrentVersion is the current version of the config file.
const CurrentVersion = 1

// Channel scope policies for reaction ban rules.
const (
	// ScopeAllow applies a rule only in its listed channels, or everywhere when none are listed.
	ScopeAllow = "allow"
	// ScopeIgnore applies a rule everywhere except its ignored channels.
	ScopeIgnore = "ignore"
)

// Translation providers for the relay feature.
const (
	ProviderOpenAI = "openai"
	ProviderDeepL  = "deepl"
)

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version   int       `koanf:"version"`
	Debug     Debug     `koanf:"debug"`
	Telemetry Telemetry `koanf:"telemetry"`
	Discord   Discord   `koanf:"discord"`
	Database  Database  `koanf:"database"`
	Redis     Redis     `koanf:"redis"`
	OpenAI    OpenAI    `koanf:"openai"`
	DeepL     DeepL     `koanf:"deepl"`
	Status    Status    `koanf:"status"`
	Twitch    Twitch    `koanf:"twitch"`
	Servers   []Server  `koanf:"servers"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Mirror logs to stderr.
	Console bool `koanf:"console"`
}

// Telemetry contains tracing configuration.
type Telemetry struct {
	// Uptrace DSN. Tracing is disabled when empty.
	UptraceDSN string `koanf:"uptrace_dsn"`
	// Service name reported to the tracing backend.
	ServiceName string `koanf:"service_name"`
}

// Discord contains the bot credentials.
type Discord struct {
	// Bot token. Overridden by DISCORD_TOKEN.
	Token string `koanf:"token"`
}

// Database contains storage configuration.
type Database struct {
	// Driver is either "sqlite" or "postgres".
	Driver string `koanf:"driver"`
	// Path of the sqlite database file.
	Path string `koanf:"path"`
	// PostgreSQL connection settings.
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	User         string `koanf:"user"`
	Password     string `koanf:"password"`
	DBName       string `koanf:"db_name"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	// SlowQueryMS is the duration in milliseconds past which a query is logged
	// as slow. Zero uses the default and a negative value disables the warning.
	SlowQueryMS int `koanf:"slow_query_ms"`
}

// Redis contains cache configuration. The cache is disabled when Host is empty.
type Redis struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// OpenAI contains LLM configuration used for translation and summaries.
type OpenAI struct {
	// API key. Overridden by OPENAI_API_KEY.
	APIKey string `koanf:"api_key"`
	// Base URL for OpenAI compatible endpoints.
	BaseURL string `koanf:"base_url"`
	// Chat model used for translation and summaries.
	Model string `koanf:"model"`
	// Maximum concurrent requests.
	MaxConcurrent int64 `koanf:"max_concurrent"`
}

// DeepL contains DeepL translation configuration.
type DeepL struct {
	// API key. Overridden by DEEPL_API_KEY.
	APIKey string `koanf:"api_key"`
	// Translate endpoint.
	Endpoint string `koanf:"endpoint"`
	// Source and target languages.
	SourceLang string `koanf:"source_lang"`
	TargetLang string `koanf:"target_lang"`
}

// Status contains the health server configuration.
type Status struct {
	// Listen address. The server is disabled when empty.
	Addr string `koanf:"addr"`
}

// Twitch contains the pubsub endpoint shared by all servers.
type Twitch struct {
	// Pubsub websocket endpoint.
	Endpoint string `koanf:"endpoint"`
	// Auth key. Overridden by TWITCH_AUTH_KEY.
	AuthKey string `koanf:"auth_key"`
}

// Server holds the per-guild feature settings.
type Server struct {
	GuildID          uint64           `koanf:"guild_id"`
	Reactions        Reactions        `koanf:"reactions"`
	PollRestrictions PollRestrictions `koanf:"poll_restrictions"`
	PendingRole      PendingRole      `koanf:"pending_role"`
	Swarm            Swarm            `koanf:"swarm"`
	QOL              QOL              `koanf:"qol"`
	EmbedBan         EmbedBan         `koanf:"embed_ban"`
	Relay            Relay            `koanf:"relay"`
	Info             Info             `koanf:"info"`
	Twitch           TwitchServer     `koanf:"twitch"`
}

// Reactions configures the reaction engine.
type Reactions struct {
	Enabled bool `koanf:"enabled"`
	// ChannelScope is "allow" or "ignore".
	ChannelScope  string        `koanf:"channel_scope"`
	Bans          []ReactionBan `koanf:"bans"`
	Notifications Notifications `koanf:"notifications"`
}

// ReactionBan is a ban rule seeded into storage at startup.
type ReactionBan struct {
	Name            string   `koanf:"name"`
	Pattern         string   `koanf:"pattern"`
	Enabled         bool     `koanf:"enabled"`
	Channels        []uint64 `koanf:"channels"`
	IgnoredChannels []uint64 `koanf:"ignored_channels"`
}

// Notifications configures threshold notifications.
type Notifications struct {
	// Channel receiving notification messages.
	Channel uint64              `koanf:"channel"`
	Groups  []NotificationGroup `koanf:"groups"`
}

// NotificationGroup raises a notification once a matching emoji reaches Threshold.
type NotificationGroup struct {
	Name      string `koanf:"name"`
	Pattern   string `koanf:"pattern"`
	Threshold int    `koanf:"threshold"`
	Enabled   bool   `koanf:"enabled"`
}

// PollRestrictions configures the poll rate limits.
type PollRestrictions struct {
	Enabled            bool     `koanf:"enabled"`
	MinutesPerUser     int      `koanf:"minutes_per_user"`
	MinutesPerChannel  int      `koanf:"minutes_per_channel"`
	AllowedRoles       []uint64 `koanf:"allowed_roles"`
	DisallowedChannels []uint64 `koanf:"disallowed_channels"`
	BypassRoles        []uint64 `koanf:"bypass_roles"`
	BypassChannels     []uint64 `koanf:"bypass_channels"`
}

// PendingRole configures the role granted to active members.
type PendingRole struct {
	Role uint64 `koanf:"role"`
}

// Swarm configures the sticker streak channel.
type Swarm struct {
	TargetChannel uint64 `koanf:"target_channel"`
}

// QOL groups the small quality of life features.
type QOL struct {
	Essaying     Essaying     `koanf:"essaying"`
	MinecraftFix MinecraftFix `koanf:"minecraft_fix"`
	AutoMod      AutoMod      `koanf:"auto_mod"`
}

// Essaying reacts to long messages.
type Essaying struct {
	Emote           string   `koanf:"emote"`
	Threshold       int      `koanf:"threshold"`
	IgnoredChannels []uint64 `koanf:"ignored_channels"`
}

// MinecraftFix strips the minecraft role from non-subscribers.
type MinecraftFix struct {
	SubRole       uint64 `koanf:"sub_role"`
	MinecraftRole uint64 `koanf:"minecraft_role"`
}

// AutoMod forwards flagged attachments to the alert message.
type AutoMod struct {
	SendFlagAttachments bool `koanf:"send_flag_attachments"`
}

// EmbedBan configures the embed ban role.
type EmbedBan struct {
	Role uint64 `koanf:"role"`
}

// Relay configures the translation relay.
type Relay struct {
	SourceChannel uint64 `koanf:"source_channel"`
	TargetChannel uint64 `koanf:"target_channel"`
	// Provider is "openai" or "deepl".
	Provider string `koanf:"provider"`
}

// Info configures the message logging context menu.
type Info struct {
	LogChannel uint64 `koanf:"log_channel"`
}

// TwitchServer configures poll result announcements for a guild.
type TwitchServer struct {
	PollUser       string `koanf:"poll_user"`
	ResultsChannel uint64 `koanf:"results_channel"`
}

// Server returns the settings for a guild.
func (c *Config) Server(guildID snowflake.ID) mo.Option[*Server] {
	for i := range c.Servers {
		if snowflake.ID(c.Servers[i].GuildID) == guildID {
			return mo.Some(&c.Servers[i])
		}
	}
	return mo.None[*Server]()
}

// GuildIDs returns the IDs of every configured guild.
func (c *Config) GuildIDs() []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(c.Servers))
	for _, server := range c.Servers {
		ids = append(ids, snowflake.ID(server.GuildID))
	}
	return ids
}

// HasID reports whether id is in list.
func HasID(list []uint64, id snowflake.ID) bool {
	return slices.Contains(list, uint64(id))
}

// HasAnyID reports whether any of ids is in list.
func HasAnyID(list []uint64, ids []snowflake.ID) bool {
	return slices.ContainsFunc(ids, func(id snowflake.ID) bool {
		return HasID(list, id)
	})
}

// LoadConfig loads the configuration from the default search paths.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return LoadConfigFrom([]string{
		".neurobot",
		homeDir + "/.neurobot/config",
		"/etc/neurobot/config",
		"/app/config",
		"config",
		".",
	})
}

// LoadConfigFrom loads config.toml from the first path that has one.
func LoadConfigFrom(configPaths []string) (*Config, string, error) {
	k := koanf.New(".")

	var usedConfigPath string
	for _, path := range configPaths {
		configPath := path + "/config.toml"
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: config.toml", ErrConfigFileNotFound)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := checkConfigVersion(config.Version, CurrentVersion); err != nil {
		return nil, "", err
	}

	// Secrets from .env are optional
	_ = godotenv.Load(usedConfigPath + "/.env")

	applyEnv(&config)
	applyDefaults(&config)

	return &config, usedConfigPath, nil
}

// applyEnv overrides secrets with environment variables when they are set.
func applyEnv(config *Config) {
	overrides := map[string]*string{
		"DISCORD_TOKEN":   &config.Discord.Token,
		"OPENAI_API_KEY":  &config.OpenAI.APIKey,
		"DEEPL_API_KEY":   &config.DeepL.APIKey,
		"TWITCH_AUTH_KEY": &config.Twitch.AuthKey,
		"UPTRACE_DSN":     &config.Telemetry.UptraceDSN,
	}
	for name, target := range overrides {
		if value, ok := os.LookupEnv(name); ok && value != "" {
			*target = value
		}
	}
}

// applyDefaults fills in settings left empty by the config file.
func applyDefaults(config *Config) {
	if config.Debug.LogLevel == "" {
		config.Debug.LogLevel = "info"
	}
	if config.Debug.MaxLogsToKeep == 0 {
		config.Debug.MaxLogsToKeep = 10
	}
	if config.Telemetry.ServiceName == "" {
		config.Telemetry.ServiceName = "neurobot"
	}
	if config.Database.Driver == "" {
		config.Database.Driver = "sqlite"
	}
	if config.Database.Path == "" {
		config.Database.Path = "neurobot.db"
	}
	if config.OpenAI.Model == "" {
		config.OpenAI.Model = "gpt-4o"
	}
	if config.OpenAI.BaseURL == "" {
		config.OpenAI.BaseURL = "https://api.openai.com/v1/"
	}
	if config.OpenAI.MaxConcurrent == 0 {
		config.OpenAI.MaxConcurrent = 4
	}
	if config.DeepL.Endpoint == "" {
		config.DeepL.Endpoint = "https://api-free.deepl.com/v2/translate"
	}
	if config.DeepL.SourceLang == "" {
		config.DeepL.SourceLang = "JA"
	}
	if config.DeepL.TargetLang == "" {
		config.DeepL.TargetLang = "EN-US"
	}
	if config.Twitch.Endpoint == "" {
		config.Twitch.Endpoint = "wss://pubsub-edge.twitch.tv/v1"
	}

	for i := range config.Servers {
		server := &config.Servers[i]
		if server.Reactions.ChannelScope == "" {
			server.Reactions.ChannelScope = ScopeIgnore
		}
		if server.Relay.Provider == "" {
			server.Relay.Provider = ProviderOpenAI
		}
	}
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: config.toml", ErrConfigVersionMissing)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: config.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/robalyx/neurobot/tree/%s/config/config.toml",
			ErrConfigVersionMismatch,
			current,
			expected,
			RepositoryVersion,
		)
	}

	return nil
}

// Package twitch listens for finished Twitch polls over pubsub and posts
// their results to Discord.
package twitch

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/robalyx/neurobot/internal/feature"
	"github.com/robalyx/neurobot/internal/gateway"
	"github.com/robalyx/neurobot/internal/scheduler"
	"go.uber.org/zap"
)

const (
	// PingInterval is how often a keepalive PING is written.
	PingInterval = 4 * time.Minute
	// ReconnectDelay is the wait after an abnormal close.
	ReconnectDelay = 5 * time.Minute
	// MaxAbnormalCloses is how many consecutive abnormal closes are tolerated.
	MaxAbnormalCloses = 5
)

// Option configures the feature.
type Option func(*Feature)

// WithReconnectDelay overrides ReconnectDelay.
func WithReconnectDelay(d time.Duration) Option {
	return func(f *Feature) { f.reconnectDelay = d }
}

// WithEndpoint overrides the configured pubsub endpoint.
func WithEndpoint(endpoint string) Option {
	return func(f *Feature) { f.endpoint = endpoint }
}

// Feature owns the pubsub connection.
type Feature struct {
	gateway        gateway.Gateway
	cron           *scheduler.Cron
	dialer         websocket.Dialer
	endpoint       string
	authKey        string
	reconnectDelay time.Duration
	logger         *zap.Logger

	// channels maps a poll user to the results channels that follow it.
	channels map[string][]snowflake.ID

	writeMu sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
}

// New creates the twitch feature.
func New(deps feature.Deps, opts ...Option) *Feature {
	f := &Feature{
		gateway:        deps.Gateway,
		cron:           deps.Cron,
		dialer:         websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		endpoint:       deps.Config.Twitch.Endpoint,
		authKey:        deps.Config.Twitch.AuthKey,
		reconnectDelay: ReconnectDelay,
		logger:         deps.Logger.Named("twitch"),
		channels:       make(map[string][]snowflake.ID),
		done:           make(chan struct{}),
	}

	for _, server := range deps.Config.Servers {
		if server.Twitch.PollUser == "" || server.Twitch.ResultsChannel == 0 {
			continue
		}
		f.channels[server.Twitch.PollUser] = append(
			f.channels[server.Twitch.PollUser], snowflake.ID(server.Twitch.ResultsChannel),
		)
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

func (f *Feature) Name() string { return "twitch" }

// Init starts the listener when at least one server follows a poll user.
func (f *Feature) Init(ctx context.Context) error {
	if len(f.channels) == 0 || f.authKey == "" {
		f.logger.Info("Twitch poll results disabled")
		close(f.done)
		return nil
	}

	go f.run(ctx)

	if f.cron != nil {
		return f.cron.Every("twitch-ping", PingInterval, func() {
			if err := f.Ping(); err != nil {
				f.logger.Warn("Failed to ping pubsub", zap.Error(err))
			}
		})
	}
	return nil
}

// Done is closed once the listener has stopped for good.
func (f *Feature) Done() <-chan struct{} {
	return f.done
}

// Ping writes a keepalive frame on the current connection.
func (f *Feature) Ping() error {
	return f.write(outFrame{Type: framePing})
}

func (f *Feature) write(frame outFrame) error {
	payload, err := sonic.Marshal(frame)
	if err != nil {
		return err
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if f.conn == nil {
		return errNotConnected
	}
	return f.conn.WriteMessage(websocket.TextMessage, payload)
}

var errNotConnected = errors.New("not connected to pubsub")

func (f *Feature) setConn(conn *websocket.Conn) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.conn = conn
}

func (f *Feature) topics() []string {
	topics := make([]string, 0, len(f.channels))
	for user := range f.channels {
		topics = append(topics, "polls."+user)
	}
	return topics
}

// run keeps a connection open until the context ends, a non-abnormal close
// is received, or too many abnormal closes happen in a row.
func (f *Feature) run(ctx context.Context) {
	defer close(f.done)

	closes := 0
	for ctx.Err() == nil {
		err := f.session(ctx, func() { closes = 0 })
		if ctx.Err() != nil {
			return
		}

		switch {
		case err == nil:
			// Server asked us to reconnect.
			continue
		case isAbnormal(err):
			closes++
			if closes > MaxAbnormalCloses {
				f.logger.Error("Too many abnormal pubsub closes, giving up",
					zap.Int("closes", closes), zap.Error(err))
				return
			}
			f.logger.Warn("Pubsub connection closed abnormally, reconnecting",
				zap.Int("closes", closes),
				zap.Duration("delay", f.reconnectDelay),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return
			case <-time.After(f.reconnectDelay):
			}
		default:
			f.logger.Error("Pubsub connection closed", zap.Error(err))
			return
		}
	}
}

type dialError struct{ err error }

func (e dialError) Error() string { return "failed to dial pubsub: " + e.err.Error() }
func (e dialError) Unwrap() error { return e.err }

func isAbnormal(err error) bool {
	var de dialError
	if errors.As(err, &de) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseAbnormalClosure)
}

// session runs one connection. It returns nil when the server requests a
// reconnect and the read error otherwise.
func (f *Feature) session(ctx context.Context, received func()) error {
	conn, _, err := f.dialer.DialContext(ctx, f.endpoint, http.Header{})
	if err != nil {
		return dialError{err}
	}
	defer conn.Close()

	f.setConn(conn)
	defer f.setConn(nil)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := f.write(outFrame{
		Type:  frameListen,
		Nonce: uuid.NewString(),
		Data:  &listenData{AuthToken: f.authKey, Topics: f.topics()},
	}); err != nil {
		return err
	}

	f.logger.Info("Connected to Twitch pubsub", zap.Strings("topics", f.topics()))

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		received()

		var frame inFrame
		if err := sonic.Unmarshal(payload, &frame); err != nil {
			f.logger.Warn("Failed to decode pubsub frame", zap.Error(err))
			continue
		}

		switch frame.Type {
		case frameReconnect:
			return nil
		case frameResponse:
			if frame.Error != "" {
				f.logger.Error("Pubsub rejected listen request", zap.String("error", frame.Error))
			}
		case frameMessage:
			f.handleMessage(ctx, frame.Data.Topic, frame.Data.Message)
		}
	}
}

func (f *Feature) handleMessage(ctx context.Context, topic, message string) {
	poll, ok, err := decodePoll(message)
	if err != nil {
		f.logger.Warn("Failed to decode poll message", zap.String("topic", topic), zap.Error(err))
		return
	}
	if !ok {
		return
	}

	user, ok := strings.CutPrefix(topic, "polls.")
	if !ok {
		return
	}

	embed := resultsEmbed(poll)
	for _, channelID := range f.channels[user] {
		msg := discord.NewMessageCreateBuilder().AddEmbeds(embed).Build()
		if _, err := f.gateway.SendMessage(ctx, channelID, msg); err != nil {
			f.logger.Error("Failed to send poll results",
				zap.Uint64("channel", uint64(channelID)), zap.Error(err))
		}
	}
}

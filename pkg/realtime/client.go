// Package realtime drives a speech-to-speech session on an external voice gateway.
//
// The gateway owns audio: it joins the call's room, runs voice activity detection,
// noise cancellation, transcription, the realtime model and speech synthesis. This
// package only configures the session over a websocket and answers the tool calls
// the model makes.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	defaultHandshakeTimeout = 15 * time.Second
	writeTimeout            = 10 * time.Second
)

// ToolInvoker executes a tool call made by the model and returns the text result.
type ToolInvoker interface {
	InvokeTool(ctx context.Context, name string, arguments json.RawMessage) (string, error)
}

// Runtime opens sessions on a voice gateway.
type Runtime interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is one connected gateway socket.
type Session interface {
	// Start configures the session and serves it until the gateway ends it or ctx is done.
	Start(ctx context.Context, cfg SessionConfig, tools ToolInvoker) error
	Close() error
}

type Settings struct {
	URL              string        `mapstructure:"url"`
	APIKey           string        `mapstructure:"api-key"`
	Model            string        `mapstructure:"model"`
	Voice            string        `mapstructure:"voice"`
	HandshakeTimeout time.Duration `mapstructure:"handshake-timeout"`
}

type Client struct {
	settings Settings
	dialer   *websocket.Dialer
}

var _ Runtime = &Client{}

func NewClient(s Settings) (*Client, error) {
	if strings.TrimSpace(s.URL) == "" {
		return nil, errors.New("realtime: empty gateway url")
	}
	if s.HandshakeTimeout <= 0 {
		s.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Client{
		settings: s,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: s.HandshakeTimeout,
		},
	}, nil
}

func (c *Client) Connect(ctx context.Context) (Session, error) {
	header := http.Header{}
	if c.settings.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.settings.APIKey)
	}
	ws, resp, err := c.dialer.DialContext(ctx, c.settings.URL, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "realtime: connect %s (status %d)", c.settings.URL, resp.StatusCode)
		}
		return nil, errors.Wrapf(err, "realtime: connect %s", c.settings.URL)
	}
	return &Conn{ws: ws, defaults: c.settings}, nil
}

// Conn is a gateway session socket. Reads happen on the goroutine running Start;
// writes from tool goroutines are serialized by writeMu.
type Conn struct {
	ws       *websocket.Conn
	defaults Settings

	writeMu   sync.Mutex
	closeOnce sync.Once
	sessionID string
}

var _ Session = &Conn{}

func (c *Conn) SessionID() string { return c.sessionID }

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) write(ev envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(ev)
}

func (c *Conn) read() (envelope, error) {
	var ev envelope
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, errors.Wrap(err, "realtime: decode frame")
	}
	return ev, nil
}

func (c *Conn) Start(ctx context.Context, cfg SessionConfig, tools ToolInvoker) error {
	if cfg.Model == "" {
		cfg.Model = c.defaults.Model
	}
	if cfg.Voice == "" {
		cfg.Voice = c.defaults.Voice
	}
	logger := log.With().Str("component", "realtime").Str("room", cfg.Room).Logger()

	stop := context.AfterFunc(ctx, func() { _ = c.ws.Close() })
	defer stop()

	if err := c.write(envelope{Type: TypeSessionStart, Session: &cfg}); err != nil {
		return errors.Wrap(err, "realtime: send session.start")
	}

	ev, err := c.read()
	if err != nil {
		return c.readErr(ctx, err, "await session.started")
	}
	switch ev.Type {
	case TypeSessionStarted:
		c.sessionID = ev.SessionID
	case TypeError:
		return errors.Errorf("realtime: session rejected: %s", ev.Message)
	default:
		return errors.Errorf("realtime: unexpected %q before session.started", ev.Type)
	}
	logger = logger.With().Str("session_id", c.sessionID).Logger()
	logger.Info().Int("tools", len(cfg.Tools)).Msg("realtime session started")

	var toolCalls errgroup.Group
	defer func() { _ = toolCalls.Wait() }()

	for {
		ev, err := c.read()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info().Msg("gateway closed the session")
				return nil
			}
			return c.readErr(ctx, err, "read")
		}
		switch ev.Type {
		case TypeToolCall:
			call := ev
			toolCalls.Go(func() error {
				c.handleToolCall(ctx, logger, tools, call)
				return nil
			})
		case TypeTranscript:
			logger.Debug().Str("role", ev.Role).Str("text", ev.Text).Msg("transcript")
		case TypeSessionEnded:
			logger.Info().Str("reason", ev.Reason).Msg("realtime session ended")
			return nil
		case TypeError:
			logger.Warn().Str("message", ev.Message).Msg("gateway error")
		default:
			logger.Debug().Str("type", ev.Type).Msg("ignoring gateway event")
		}
	}
}

func (c *Conn) readErr(ctx context.Context, err error, what string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Wrapf(err, "realtime: %s", what)
}

func (c *Conn) handleToolCall(ctx context.Context, logger zerolog.Logger, tools ToolInvoker, call envelope) {
	logger = logger.With().Str("tool", call.Name).Str("call_id", call.CallID).Logger()
	logger.Info().RawJSON("arguments", rawOrNull(call.Arguments)).Msg("tool call")

	var (
		out string
		err error
	)
	if tools == nil {
		err = errors.Errorf("no tools registered")
	} else {
		out, err = tools.InvokeTool(ctx, call.Name, call.Arguments)
	}
	result := envelope{Type: TypeToolResult, CallID: call.CallID, Output: out}
	if err != nil {
		logger.Warn().Err(err).Msg("tool call failed")
		result.IsError = true
		if result.Output == "" {
			result.Output = err.Error()
		}
	}
	if werr := c.write(result); werr != nil {
		logger.Warn().Err(werr).Msg("could not deliver tool result")
	}
}

func rawOrNull(b json.RawMessage) []byte {
	if len(b) == 0 || !json.Valid(b) {
		return []byte("null")
	}
	return b
}

package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/websocket"

	"github.com/latoulicious/Conch/pkg/pipeline"
)

// Gateway drives the websocket session of a discordgo client. Automatic
// reconnects of discordgo are disabled; restarts go through Stop, Login and
// Start.
type Gateway struct {
	session *discordgo.Session
	logger  pipeline.Logger

	mu           sync.Mutex
	loggedIn     bool
	shuttingDown bool
	lastClose    *websocket.CloseError
}

// NewGateway wraps session and routes discordgo's own log output to logger
func NewGateway(session *discordgo.Session, logger pipeline.Logger) *Gateway {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	session.ShouldReconnectOnError = false

	g := &Gateway{
		session: session,
		logger:  logger.With(pipeline.String("component", "gateway")),
	}
	discordgo.Logger = g.discordLog
	return g
}

// discordLog receives discordgo's log calls and remembers the last
// websocket close error so disconnects can be classified.
func (g *Gateway) discordLog(level, _ int, format string, args ...interface{}) {
	for _, arg := range args {
		if err, ok := arg.(error); ok {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				g.mu.Lock()
				g.lastClose = closeErr
				g.mu.Unlock()
			}
		}
	}

	msg := fmt.Sprintf(format, args...)
	switch level {
	case discordgo.LogError:
		g.logger.Error(msg, pipeline.String("source", "discordgo"))
	case discordgo.LogWarning:
		g.logger.Warn(msg, pipeline.String("source", "discordgo"))
	default:
		g.logger.Debug(msg, pipeline.String("source", "discordgo"))
	}
}

// DisconnectCause returns the error the last session ended with
func (g *Gateway) DisconnectCause() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastClose != nil {
		err := g.lastClose
		g.lastClose = nil
		return err
	}
	return errors.New("gateway connection closed")
}

// Stop closes the websocket
func (g *Gateway) Stop(context.Context) error {
	return g.session.Close()
}

// Login validates the token against the REST API
func (g *Gateway) Login(context.Context) error {
	user, err := g.session.User("@me")
	if err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}

	g.mu.Lock()
	g.loggedIn = true
	g.mu.Unlock()

	g.logger.Info("Logged in", pipeline.String("user", user.Username))
	return nil
}

func (g *Gateway) LoggedIn() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loggedIn
}

// Logout marks the token as unverified so the next restart logs in again
func (g *Gateway) Logout() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loggedIn = false
}

// Start opens the websocket
func (g *Gateway) Start(context.Context) error {
	return g.session.Open()
}

// Shutdown closes the session for good; later disconnects are expected
func (g *Gateway) Shutdown() error {
	g.mu.Lock()
	g.shuttingDown = true
	g.mu.Unlock()
	return g.session.Close()
}

// ShuttingDown reports whether Shutdown was called
func (g *Gateway) ShuttingDown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.shuttingDown
}

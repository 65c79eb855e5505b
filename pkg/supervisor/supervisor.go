// Package supervisor restarts the gateway session after a disconnect and
// resumes playback once the new session is ready.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/latoulicious/Conch/pkg/pipeline"
)

// Close codes after which the session cannot be resumed
const (
	CloseSessionInvalid = 4006
	CloseSessionTimeout = 4009
)

// Gateway is the restartable gateway client
type Gateway interface {
	Stop(ctx context.Context) error
	Login(ctx context.Context) error
	LoggedIn() bool
	Logout()
	Start(ctx context.Context) error
}

// Resumer continues playback after a reconnect
type Resumer interface {
	ResumeAll(ctx context.Context)
}

// DisconnectError describes a classified gateway disconnect
type DisconnectError struct {
	Code    int
	Relogin bool
	Err     error
}

func (e *DisconnectError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("gateway disconnected (code %d, relogin %t): %v", e.Code, e.Relogin, e.Err)
	}
	return fmt.Sprintf("gateway disconnected: %v", e.Err)
}

func (e *DisconnectError) Unwrap() error {
	return e.Err
}

// Classify inspects the error a session ended with
func Classify(err error) *DisconnectError {
	d := &DisconnectError{Err: err}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		d.Code = closeErr.Code
		d.Relogin = closeErr.Code == CloseSessionInvalid || closeErr.Code == CloseSessionTimeout
	}
	return d
}

// Supervisor reconnects a Gateway with exponential backoff
type Supervisor struct {
	gateway Gateway
	resumer Resumer
	config  pipeline.SupervisorConfig
	logger  pipeline.Logger
	metrics *pipeline.ScopedMetrics

	// wait blocks for the backoff delay; replaced in tests
	wait func(ctx context.Context, d time.Duration) error

	mu            sync.Mutex
	reconnecting  bool
	attempts      int
	resumePending bool
}

// New creates a supervisor for gateway
func New(gateway Gateway, resumer Resumer, config pipeline.SupervisorConfig, logger pipeline.Logger, collector pipeline.MetricsCollector) *Supervisor {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Supervisor{
		gateway: gateway,
		resumer: resumer,
		config:  config,
		logger:  logger.With(pipeline.String("component", "supervisor")),
		metrics: pipeline.NewScopedMetrics(collector, nil),
		wait:    waitContext,
	}
}

func waitContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backoff returns the delay before the given reconnect attempt
func (s *Supervisor) Backoff(attempt int) time.Duration {
	base := s.config.BaseDelay
	if base <= 0 {
		base = 2 * time.Second
	}
	maxDelay := s.config.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	if attempt < 0 {
		attempt = 0
	}
	// cap the shift so large attempts cannot overflow
	if attempt > 16 {
		attempt = 16
	}
	return min(maxDelay, base<<attempt)
}

// Attempts returns the current reconnect attempt counter
func (s *Supervisor) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// ResumePending reports whether the next ready event resumes playback
func (s *Supervisor) ResumePending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumePending
}

// HandleDisconnect restarts the gateway. Concurrent calls while a restart is
// in progress are ignored.
func (s *Supervisor) HandleDisconnect(ctx context.Context, cause error) error {
	s.mu.Lock()
	if s.reconnecting {
		s.mu.Unlock()
		s.logger.Debug("Reconnect already in progress")
		return nil
	}
	s.reconnecting = true
	delay := s.Backoff(s.attempts)
	maxAttempt := s.config.MaxAttempt
	if maxAttempt <= 0 {
		maxAttempt = 4
	}
	s.attempts = min(s.attempts+1, maxAttempt)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
	}()

	disconnect := Classify(cause)
	if disconnect.Relogin {
		s.logger.Warn("Gateway session invalid, restarting client", pipeline.Int("code", disconnect.Code))
		s.gateway.Logout()
	} else {
		s.logger.Warn("Gateway disconnected, attempting restart", pipeline.Error(cause))
	}
	s.metrics.Counter("gateway.reconnect.attempts", 1, map[string]string{"relogin": fmt.Sprint(disconnect.Relogin)})

	if err := s.restart(ctx, delay); err != nil {
		s.logger.Error("Failed to restart gateway client after disconnect", pipeline.Error(err))
		s.metrics.Counter("gateway.reconnect.failures", 1, nil)
		return err
	}

	s.mu.Lock()
	s.attempts = 0
	s.resumePending = true
	s.mu.Unlock()

	s.logger.Info("Gateway client restarted")
	s.metrics.Counter("gateway.reconnect.successes", 1, nil)
	return nil
}

// Recover calls HandleDisconnect until the gateway is back or ctx is done.
// Each failed attempt waits a longer backoff before the next one.
func (s *Supervisor) Recover(ctx context.Context, cause error) error {
	for {
		err := s.HandleDisconnect(ctx, cause)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Warn("Reconnect attempt failed, retrying",
			pipeline.Int("attempts", s.Attempts()),
			pipeline.Error(err),
		)
		cause = err
	}
}

func (s *Supervisor) restart(ctx context.Context, delay time.Duration) error {
	s.logger.Info("Waiting before reconnect", pipeline.Duration("delay", delay))
	if err := s.wait(ctx, delay); err != nil {
		return err
	}
	if err := s.gateway.Stop(ctx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	if !s.gateway.LoggedIn() {
		if err := s.gateway.Login(ctx); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}
	if err := s.gateway.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

// HandleReady resumes playback when the ready event follows a reconnect
func (s *Supervisor) HandleReady(ctx context.Context) {
	s.mu.Lock()
	pending := s.resumePending
	s.resumePending = false
	s.mu.Unlock()

	if !pending || s.resumer == nil {
		return
	}
	s.logger.Info("Resuming playback after reconnect")
	s.resumer.ResumeAll(ctx)
}

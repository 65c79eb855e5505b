package player

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/latoulicious/Conch/pkg/common"
	"github.com/latoulicious/Conch/pkg/pipeline"
)

// statusMessage tracks the now playing message of a guild. It is only
// touched with the coordinator lock held.
type statusMessage struct {
	channel StatusChannel
	id      string
	limiter *rate.Limiter
	logger  pipeline.Logger
}

func newStatusMessage(interval time.Duration, burst int, logger pipeline.Logger) *statusMessage {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if burst < 1 {
		burst = 1
	}
	return &statusMessage{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// show sends the message, or edits it when one already exists in the same
// channel. A message in another channel is replaced. Refreshes that do not
// change the song are dropped while the edit rate is exceeded.
func (s *statusMessage) show(channel StatusChannel, song *common.Song, volume float64, songChanged bool) {
	if channel == nil || song == nil {
		return
	}

	if s.id != "" && !sameChannel(s.channel, channel) {
		s.clear()
	}

	if s.id != "" {
		if !songChanged && !s.limiter.Allow() {
			return
		}
		err := s.channel.EditStatus(s.id, song, volume)
		if err == nil {
			return
		}
		s.logger.Debug("Failed to edit status message, sending a new one", pipeline.Error(err))
		s.clear()
	}

	id, err := channel.SendStatus(song, volume)
	if err != nil {
		s.logger.Warn("Failed to send status message", pipeline.Error(err))
		return
	}
	s.channel = channel
	s.id = id
}

// refresh re-renders the current message if there is one
func (s *statusMessage) refresh(song *common.Song, volume float64) {
	if s.id == "" {
		return
	}
	s.show(s.channel, song, volume, false)
}

func (s *statusMessage) clear() {
	if s.id == "" {
		return
	}
	if err := s.channel.DeleteMessage(s.id); err != nil {
		s.logger.Debug("Failed to delete status message", pipeline.Error(err))
	}
	s.channel = nil
	s.id = ""
}

// sameChannel compares channels by id when they expose one. Commands build a
// new channel value per interaction.
func sameChannel(a, b StatusChannel) bool {
	ai, aok := a.(interface{ ID() string })
	bi, bok := b.(interface{ ID() string })
	if aok && bok {
		return ai.ID() == bi.ID()
	}
	return a == b
}

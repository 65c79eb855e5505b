package discord

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jonas747/ogg"
	"layeh.com/gopus"

	"github.com/latoulicious/Conch/pkg/pipeline"
)

// oggHeaderPackets is the number of OpusHead and OpusTags packets that
// precede the audio packets of an Ogg/Opus stream
const oggHeaderPackets = 2

// FrameOutput is where Opus packets go
type FrameOutput struct {
	Frames   chan<- []byte
	Ready    func() bool
	Speaking func(bool) error
}

// send hands a packet to the voice connection. A packet that cannot be
// delivered within timeout is dropped.
func (o FrameOutput) send(packet []byte, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case o.Frames <- packet:
		return true
	case <-t.C:
		return false
	}
}

func (o FrameOutput) speaking(on bool) {
	if o.Speaking != nil {
		_ = o.Speaking(on)
	}
}

// OpusEncoder encodes one PCM frame to an Opus packet
type OpusEncoder interface {
	Encode(pcm []int16, frameSize, maxDataBytes int) ([]byte, error)
}

// NewOpusEncoder creates a gopus encoder for the configured format
func NewOpusEncoder(config pipeline.OpusConfig, bitrate int) (OpusEncoder, error) {
	encoder, err := gopus.NewEncoder(config.SampleRate, config.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if bitrate > 0 {
		encoder.SetBitrate(bitrate)
	}
	return encoder, nil
}

// PCMSink encodes 20 ms s16le PCM frames to Opus and sends them
type PCMSink struct {
	out       FrameOutput
	encoder   OpusEncoder
	frameSize int
	channels  int
	maxBytes  int
	timeout   time.Duration
	logger    pipeline.Logger

	pending []byte
	dropped int
	sent    int
}

// NewPCMSink creates a sink that encodes with encoder
func NewPCMSink(out FrameOutput, encoder OpusEncoder, config pipeline.OpusConfig, timeout time.Duration, logger pipeline.Logger) *PCMSink {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	out.speaking(true)
	return &PCMSink{
		out:       out,
		encoder:   encoder,
		frameSize: config.FrameSize,
		channels:  config.Channels,
		maxBytes:  config.MaxPacketSize,
		timeout:   timeout,
		logger:    logger,
	}
}

func (s *PCMSink) frameBytes() int {
	return s.frameSize * s.channels * 2
}

// Write encodes every complete frame in p; a trailing partial frame waits
// for the next write.
func (s *PCMSink) Write(p []byte) (int, error) {
	s.pending = append(s.pending, p...)
	size := s.frameBytes()

	for len(s.pending) >= size {
		if err := s.sendFrame(s.pending[:size]); err != nil {
			return len(p), err
		}
		s.pending = s.pending[size:]
	}
	return len(p), nil
}

func (s *PCMSink) sendFrame(frame []byte) error {
	packet, err := s.encoder.Encode(bytesToInt16(frame), s.frameSize, s.maxBytes)
	if err != nil {
		return fmt.Errorf("opus encoding failed: %w", err)
	}

	if !s.out.send(packet, s.timeout) {
		s.dropped++
		if s.dropped%50 == 1 {
			s.logger.Warn("OpusSend channel blocked, skipping frame", pipeline.Int("dropped", s.dropped))
		}
		return nil
	}
	s.sent++
	return nil
}

func (s *PCMSink) CanWrite() bool {
	return s.out.Ready == nil || s.out.Ready()
}

// Flush pads and sends a trailing partial frame
func (s *PCMSink) Flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	frame := make([]byte, s.frameBytes())
	copy(frame, s.pending)
	s.pending = s.pending[:0]
	return s.sendFrame(frame)
}

func (s *PCMSink) Close() error {
	s.out.speaking(false)
	s.logger.Debug("PCM sink closed", pipeline.Int("frames", s.sent), pipeline.Int("dropped", s.dropped))
	return nil
}

func bytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// OggSink demuxes an Ogg/Opus byte stream and forwards the Opus packets
// without re-encoding.
type OggSink struct {
	out     FrameOutput
	timeout time.Duration
	logger  pipeline.Logger

	pw   *io.PipeWriter
	done chan struct{}

	mu      sync.Mutex
	err     error
	packets int
	dropped int
}

// NewOggSink starts the demuxer goroutine
func NewOggSink(out FrameOutput, timeout time.Duration, logger pipeline.Logger) *OggSink {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	pr, pw := io.Pipe()
	s := &OggSink{
		out:     out,
		timeout: timeout,
		logger:  logger,
		pw:      pw,
		done:    make(chan struct{}),
	}
	out.speaking(true)
	go s.demux(pr)
	return s
}

func (s *OggSink) demux(pr *io.PipeReader) {
	defer close(s.done)

	decoder := ogg.NewPacketDecoder(ogg.NewDecoder(pr))
	skip := oggHeaderPackets
	for {
		packet, _, err := decoder.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.ErrClosedPipe) {
				s.setErr(fmt.Errorf("ogg demux failed: %w", err))
			}
			pr.CloseWithError(err)
			return
		}
		if skip > 0 {
			skip--
			continue
		}

		// the decoder reuses its buffer
		frame := append([]byte(nil), packet...)
		s.mu.Lock()
		if s.out.send(frame, s.timeout) {
			s.packets++
		} else {
			s.dropped++
		}
		s.mu.Unlock()
	}
}

func (s *OggSink) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Write feeds Ogg bytes to the demuxer
func (s *OggSink) Write(p []byte) (int, error) {
	n, err := s.pw.Write(p)
	if err != nil {
		s.mu.Lock()
		demuxErr := s.err
		s.mu.Unlock()
		if demuxErr != nil {
			return n, demuxErr
		}
	}
	return n, err
}

func (s *OggSink) CanWrite() bool {
	return s.out.Ready == nil || s.out.Ready()
}

// Flush waits until the demuxer has forwarded everything written so far
func (s *OggSink) Flush() error {
	_ = s.pw.Close()
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *OggSink) Close() error {
	_ = s.pw.Close()
	<-s.done
	s.out.speaking(false)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Debug("Ogg sink closed", pipeline.Int("packets", s.packets), pipeline.Int("dropped", s.dropped))
	return nil
}

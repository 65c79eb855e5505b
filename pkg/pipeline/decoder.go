package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FFmpegDecoder runs ffmpeg to turn a stream locator into raw PCM or Ogg/Opus
type FFmpegDecoder struct {
	config FFmpegConfig
	opus   OpusConfig
	logger Logger
}

// NewFFmpegDecoder creates a decoder using the given ffmpeg settings
func NewFFmpegDecoder(config FFmpegConfig, opus OpusConfig, logger Logger) *FFmpegDecoder {
	if logger == nil {
		logger = NullLogger()
	}
	return &FFmpegDecoder{
		config: config,
		opus:   opus,
		logger: logger.With(String("component", "ffmpeg")),
	}
}

// Args builds the ffmpeg command line for a request. The seek goes before
// the input so ffmpeg seeks the source instead of decoding up to the offset.
func (d *FFmpegDecoder) Args(req DecodeRequest) []string {
	logLevel := d.config.LogLevel
	if logLevel == "" {
		logLevel = "error"
	}
	args := []string{"-hide_banner", "-loglevel", logLevel, "-re"}

	if isNetworkLocator(req.Locator) {
		args = append(args, d.config.ReconnectArgs...)
	}
	args = append(args, "-err_detect", "ignore_err")

	if req.Start > 0 {
		args = append(args, "-ss", formatSeek(req.Start))
	}
	args = append(args, "-i", req.Locator, "-vn",
		"-ac", strconv.Itoa(d.opus.Channels),
		"-ar", strconv.Itoa(d.opus.SampleRate),
	)

	if req.Compressed {
		if req.Volume >= 0 && req.Volume < 1 {
			args = append(args, "-af", fmt.Sprintf("volume=%.2f", req.Volume))
		}
		args = append(args,
			"-c:a", "libopus",
			"-b:a", strconv.Itoa(req.Bitrate),
			"-f", "opus",
		)
	} else {
		args = append(args, "-f", "s16le")
	}

	return append(args, "pipe:1")
}

// Start launches ffmpeg. The process is not bound to ctx; callers terminate
// it through the returned handle.
func (d *FFmpegDecoder) Start(ctx context.Context, req DecodeRequest) (DecoderProcess, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(d.config.BinaryPath, d.Args(req)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	d.logger.Debug("Started ffmpeg",
		Int("pid", cmd.Process.Pid),
		Bool("compressed", req.Compressed),
		Duration("start", req.Start),
	)

	proc := &ffmpegProcess{
		cmd:        cmd,
		stdout:     stdout,
		waitDelay:  d.config.WaitDelay,
		stderrDone: make(chan struct{}),
		logger:     d.logger.With(Int("pid", cmd.Process.Pid)),
	}
	go proc.drainStderr(stderr)

	return proc, nil
}

type ffmpegProcess struct {
	cmd        *exec.Cmd
	stdout     io.Reader
	waitDelay  time.Duration
	stderrDone chan struct{}
	logger     Logger

	closeOnce sync.Once
	closeErr  error
}

func (p *ffmpegProcess) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

// drainStderr keeps ffmpeg from blocking on a full stderr pipe
func (p *ffmpegProcess) drainStderr(r io.Reader) {
	defer close(p.stderrDone)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			p.logger.Warn("ffmpeg", String("line", line))
		}
	}
}

func (p *ffmpegProcess) Terminate() error {
	err := p.cmd.Process.Signal(os.Interrupt)
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	// interrupts are unsupported on some platforms
	return p.cmd.Process.Kill()
}

func (p *ffmpegProcess) Close() error {
	p.closeOnce.Do(func() {
		_ = p.Terminate()

		waitDelay := p.waitDelay
		if waitDelay <= 0 {
			waitDelay = 3 * time.Second
		}

		select {
		case <-p.stderrDone:
		case <-time.After(waitDelay):
			p.logger.Warn("ffmpeg did not exit after interrupt, killing")
			_ = p.cmd.Process.Kill()
		}

		err := p.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			p.closeErr = err
		}
	})
	return p.closeErr
}

func isNetworkLocator(locator string) bool {
	return strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://")
}

// formatSeek renders d as seconds with millisecond precision
func formatSeek(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

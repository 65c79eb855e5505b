package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/latoulicious/Conch/pkg/common"
	"github.com/latoulicious/Conch/pkg/pipeline"
)

const metadataTemplate = "%(title)s\t%(uploader)s\t%(duration)s\t%(webpage_url)s\t%(id)s"

// Ytdlp runs yt-dlp for stream locators and metadata of arbitrary sites
type Ytdlp struct {
	executable string
	timeout    time.Duration
	logger     pipeline.Logger
}

// NewYtdlp creates a yt-dlp runner from the resolver configuration
func NewYtdlp(config pipeline.ResolverConfig, logger pipeline.Logger) *Ytdlp {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Ytdlp{
		executable: config.YtdlpPath,
		timeout:    config.LocatorTimeout,
		logger:     logger.With(pipeline.String("component", "yt-dlp")),
	}
}

func (y *Ytdlp) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		IgnoreConfig()
	if y.executable != "" && y.executable != "yt-dlp" {
		cmd.SetExecutable(y.executable)
	}
	return cmd
}

func (y *Ytdlp) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if y.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, y.timeout)
}

// Locate prints the direct url of the best audio format of reference
func (y *Ytdlp) Locate(ctx context.Context, reference string) (string, error) {
	ctx, cancel := y.withTimeout(ctx)
	defer cancel()

	res, err := y.command().
		Format("bestaudio/best").
		NoPlaylist().
		Print("urls").
		Run(ctx, reference)
	if err != nil {
		return "", fmt.Errorf("yt-dlp failed: %w%s", err, stderrSuffix(res))
	}

	locator := firstLine(res.Stdout)
	if locator == "" {
		return "", errors.New("yt-dlp returned no stream url")
	}

	y.logger.Debug("Located stream", pipeline.String("reference", reference))
	return locator, nil
}

// Metadata fetches title, uploader and duration of reference
func (y *Ytdlp) Metadata(ctx context.Context, reference string) (*common.Song, error) {
	ctx, cancel := y.withTimeout(ctx)
	defer cancel()

	res, err := y.command().
		NoPlaylist().
		Print(metadataTemplate).
		Run(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w%s", err, stderrSuffix(res))
	}

	song, ok := parseMetadataLine(firstLine(res.Stdout), reference)
	if !ok {
		return nil, errors.New("failed to parse yt-dlp metadata")
	}
	return song, nil
}

// Playlist lists up to limit entries of a playlist reference
func (y *Ytdlp) Playlist(ctx context.Context, reference string, limit int) ([]*common.Song, error) {
	ctx, cancel := y.withTimeout(ctx)
	defer cancel()

	cmd := y.command().
		FlatPlaylist().
		Print("%(title)s\t%(uploader)s\t%(duration)s\t%(url)s\t%(id)s")
	if limit > 0 {
		cmd.PlaylistItems(fmt.Sprintf("1-%d", limit))
	}

	res, err := cmd.Run(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w%s", err, stderrSuffix(res))
	}

	var songs []*common.Song
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if song, ok := parseMetadataLine(line, ""); ok {
			songs = append(songs, song)
		}
	}
	return songs, nil
}

// parseMetadataLine parses one line printed with metadataTemplate
func parseMetadataLine(line, fallbackReference string) (*common.Song, bool) {
	parts := strings.Split(strings.TrimSpace(line), "\t")
	if len(parts) < 4 {
		return nil, false
	}

	title := cleanField(parts[0])
	if title == "" {
		title = "Unknown Title"
	}

	reference := cleanField(parts[3])
	if reference == "" {
		reference = fallbackReference
	}
	if reference == "" {
		return nil, false
	}

	song := common.NewSong(title, reference, parseSeconds(parts[2]))
	song.Author = cleanField(parts[1])
	if len(parts) > 4 && IsYouTubeURL(reference) {
		song.ThumbnailURL = YouTubeThumbnailURL(cleanField(parts[4]))
	}
	return song, true
}

// cleanField maps yt-dlp placeholders for missing values to empty strings
func cleanField(s string) string {
	s = strings.TrimSpace(s)
	if s == "NA" || s == "None" {
		return ""
	}
	return s
}

// parseSeconds parses a yt-dlp duration in seconds; unknown durations are zero
func parseSeconds(s string) time.Duration {
	seconds, err := strconv.ParseFloat(cleanField(s), 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func stderrSuffix(res *ytdlp.Result) string {
	if res == nil {
		return ""
	}
	if msg := firstLine(res.Stderr); msg != "" {
		return ": " + msg
	}
	return ""
}

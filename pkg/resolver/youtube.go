package resolver

import (
	"context"
	"errors"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/latoulicious/Conch/pkg/common"
	"github.com/latoulicious/Conch/pkg/pipeline"
)

// opusItag is the 160 kbps Opus-in-WebM audio format
const opusItag = 251

// VideoClient is the subset of youtube.Client used by YouTubeResolver
type VideoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetPlaylistContext(ctx context.Context, url string) (*youtube.Playlist, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
}

// YouTubeResolver handles YouTube videos and playlists
type YouTubeResolver struct {
	client        VideoClient
	fallback      StreamLocator
	preferOpus    bool
	playlistLimit int
	logger        pipeline.Logger
}

// NewYouTubeResolver creates a YouTube resolver. fallback locates streams
// when the client cannot, and may be nil.
func NewYouTubeResolver(client VideoClient, fallback StreamLocator, config pipeline.ResolverConfig, logger pipeline.Logger) *YouTubeResolver {
	if client == nil {
		client = &youtube.Client{}
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &YouTubeResolver{
		client:        client,
		fallback:      fallback,
		preferOpus:    config.PreferOpus,
		playlistLimit: config.PlaylistLimit,
		logger:        logger.With(pipeline.String("resolver", "youtube")),
	}
}

func (r *YouTubeResolver) Name() string { return "youtube" }

func (r *YouTubeResolver) CanHandle(reference string) bool {
	return IsYouTubeURL(reference)
}

func (r *YouTubeResolver) FetchMetadata(ctx context.Context, reference string) (*common.Song, error) {
	video, err := r.client.GetVideoContext(ctx, NormalizeURL(reference))
	if err != nil {
		return nil, err
	}

	song := common.NewSong(video.Title, WatchURL(video.ID), video.Duration)
	song.Author = video.Author
	song.ThumbnailURL = YouTubeThumbnailURL(video.ID)
	return song, nil
}

func (r *YouTubeResolver) IsPlaylist(reference string) bool {
	return IsYouTubePlaylistURL(reference)
}

// Expand lists playlist entries as unresolved songs, up to the configured limit
func (r *YouTubeResolver) Expand(ctx context.Context, reference string) ([]*common.Song, error) {
	playlist, err := r.client.GetPlaylistContext(ctx, NormalizeURL(reference))
	if err != nil {
		return nil, err
	}

	songs := make([]*common.Song, 0, len(playlist.Videos))
	for _, entry := range playlist.Videos {
		if r.playlistLimit > 0 && len(songs) >= r.playlistLimit {
			break
		}
		song := common.NewSong(entry.Title, WatchURL(entry.ID), entry.Duration)
		song.Author = entry.Author
		song.ThumbnailURL = YouTubeThumbnailURL(entry.ID)
		songs = append(songs, song)
	}

	r.logger.Info("Expanded playlist",
		pipeline.String("playlist", playlist.Title),
		pipeline.Int("entries", len(songs)),
	)
	return songs, nil
}

// ResolveStreamLocator picks the best audio format. With opus preferred the
// Opus format becomes the alternate locator for the compressed path.
func (r *YouTubeResolver) ResolveStreamLocator(ctx context.Context, song *common.Song) (*common.Song, error) {
	var stream, alternate string

	video, err := r.client.GetVideoContext(ctx, song.Reference)
	if err == nil {
		formats := video.Formats.WithAudioChannels().Type("audio")

		if r.preferOpus {
			if f := findOpusFormat(formats); f != nil {
				alternate, err = r.client.GetStreamURLContext(ctx, video, f)
				if err != nil {
					r.logger.Debug("Opus format url unavailable", pipeline.Error(err))
					alternate = ""
				}
			}
		}

		if f := bestAudioFormat(formats); f != nil {
			stream, err = r.client.GetStreamURLContext(ctx, video, f)
		} else {
			err = errors.New("video has no audio formats")
		}
	}

	if stream == "" && r.fallback != nil {
		r.logger.Debug("Falling back to stream locator", pipeline.String("reference", song.Reference), pipeline.Error(err))
		stream, err = r.fallback.Locate(ctx, song.Reference)
	}
	if stream == "" {
		if err == nil {
			err = errors.New("no stream url found")
		}
		return nil, err
	}

	return song.WithLocators(stream, alternate), nil
}

func findOpusFormat(formats youtube.FormatList) *youtube.Format {
	for i := range formats {
		if formats[i].ItagNo == opusItag {
			return &formats[i]
		}
	}
	for i := range formats {
		if strings.Contains(formats[i].MimeType, "opus") {
			return &formats[i]
		}
	}
	return nil
}

func bestAudioFormat(formats youtube.FormatList) *youtube.Format {
	var best *youtube.Format
	for i := range formats {
		if best == nil || formats[i].Bitrate > best.Bitrate {
			best = &formats[i]
		}
	}
	return best
}

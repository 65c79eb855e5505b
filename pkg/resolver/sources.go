package resolver

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/ppalone/ytsearch"

	"github.com/latoulicious/Conch/pkg/common"
)

// DirectResolver handles plain http(s) links to audio files. The link
// itself is the stream locator.
type DirectResolver struct{}

func (DirectResolver) Name() string { return "direct" }

func (DirectResolver) CanHandle(reference string) bool {
	return IsAudioFileURL(reference)
}

func (DirectResolver) FetchMetadata(_ context.Context, reference string) (*common.Song, error) {
	reference = NormalizeURL(reference)
	name := reference
	if u, err := url.Parse(reference); err == nil {
		base := path.Base(u.Path)
		if unescaped, err := url.PathUnescape(base); err == nil {
			base = unescaped
		}
		if base != "" && base != "/" && base != "." {
			name = base
		}
	}
	return common.NewSong(name, reference, 0), nil
}

// StableLocators reports true; a file link does not expire.
func (DirectResolver) StableLocators() bool { return true }

func (DirectResolver) ResolveStreamLocator(_ context.Context, song *common.Song) (*common.Song, error) {
	return song.WithLocators(NormalizeURL(song.Reference), ""), nil
}

// MetadataSource describes arbitrary urls
type MetadataSource interface {
	Metadata(ctx context.Context, reference string) (*common.Song, error)
}

// GenericResolver handles every other http(s) url through yt-dlp. Streams
// come from the pipeline's default locator.
type GenericResolver struct {
	source MetadataSource
}

// NewGenericResolver creates a resolver backed by source
func NewGenericResolver(source MetadataSource) *GenericResolver {
	return &GenericResolver{source: source}
}

func (r *GenericResolver) Name() string { return "generic" }

func (r *GenericResolver) CanHandle(reference string) bool {
	return IsURL(reference)
}

func (r *GenericResolver) FetchMetadata(ctx context.Context, reference string) (*common.Song, error) {
	return r.source.Metadata(ctx, NormalizeURL(reference))
}

// SearchHit is one keyword search result
type SearchHit struct {
	VideoID string
	Title   string
}

// SearchFunc runs a keyword search
type SearchFunc func(ctx context.Context, query string) ([]SearchHit, error)

// YTSearch adapts the ytsearch client to a SearchFunc
func YTSearch() SearchFunc {
	client := ytsearch.NewClient(nil)
	return func(ctx context.Context, query string) ([]SearchHit, error) {
		res, err := client.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		hits := make([]SearchHit, 0, len(res.Results))
		for _, v := range res.Results {
			if v.VideoID != "" {
				hits = append(hits, SearchHit{VideoID: v.VideoID, Title: v.Title})
			}
		}
		return hits, nil
	}
}

// SearchResolver turns keywords into the first matching YouTube video
type SearchResolver struct {
	search  SearchFunc
	youtube Resolver
}

// NewSearchResolver creates a keyword resolver. youtube fetches the full
// metadata of the hit and may be nil.
func NewSearchResolver(search SearchFunc, youtube Resolver) *SearchResolver {
	return &SearchResolver{search: search, youtube: youtube}
}

func (r *SearchResolver) Name() string { return "search" }

func (r *SearchResolver) CanHandle(reference string) bool {
	return strings.TrimSpace(reference) != "" && !IsURL(reference)
}

func (r *SearchResolver) FetchMetadata(ctx context.Context, reference string) (*common.Song, error) {
	hits, err := r.search(ctx, reference)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, ErrNoSearchResults
	}

	hit := hits[0]
	if r.youtube != nil {
		if song, err := r.youtube.FetchMetadata(ctx, WatchURL(hit.VideoID)); err == nil {
			return song, nil
		}
	}

	song := common.NewSong(hit.Title, WatchURL(hit.VideoID), 0)
	song.ThumbnailURL = YouTubeThumbnailURL(hit.VideoID)
	return song, nil
}

// Package resolver turns user references into songs and songs into stream
// locators. Resolvers are tried in registration order; the first one that
// accepts a reference handles it.
package resolver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/latoulicious/Conch/pkg/common"
	"github.com/latoulicious/Conch/pkg/pipeline"
)

// Resolver produces song metadata for the references it accepts
type Resolver interface {
	Name() string
	CanHandle(reference string) bool
	FetchMetadata(ctx context.Context, reference string) (*common.Song, error)
}

// StreamResolver is implemented by resolvers that locate streams themselves
type StreamResolver interface {
	ResolveStreamLocator(ctx context.Context, song *common.Song) (*common.Song, error)
}

// StableLocator is implemented by resolvers whose stream locators never
// expire, so a resolved song can be played again without resolving it anew.
type StableLocator interface {
	StableLocators() bool
}

// PlaylistExpander is implemented by resolvers that understand playlists
type PlaylistExpander interface {
	IsPlaylist(reference string) bool
	Expand(ctx context.Context, reference string) ([]*common.Song, error)
}

// StreamLocator finds a direct stream url for a reference. It is used for
// resolvers without their own StreamResolver.
type StreamLocator interface {
	Locate(ctx context.Context, reference string) (string, error)
}

// Pipeline dispatches references to registered resolvers
type Pipeline struct {
	resolvers []Resolver
	locator   StreamLocator
	timeout   time.Duration
	logger    pipeline.Logger
}

// NewPipeline creates a pipeline. locator may be nil, in which case songs
// from resolvers without a StreamResolver cannot be streamed.
func NewPipeline(locator StreamLocator, timeout time.Duration, logger pipeline.Logger, resolvers ...Resolver) *Pipeline {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pipeline{
		resolvers: resolvers,
		locator:   locator,
		timeout:   timeout,
		logger:    logger.With(pipeline.String("component", "resolver")),
	}
}

// Register appends a resolver at the lowest priority
func (p *Pipeline) Register(r Resolver) {
	p.resolvers = append(p.resolvers, r)
}

// Resolvers returns the registered resolver names in order
func (p *Pipeline) Resolvers() []string {
	names := make([]string, 0, len(p.resolvers))
	for _, r := range p.resolvers {
		names = append(names, r.Name())
	}
	return names
}

func (p *Pipeline) find(reference string) Resolver {
	for _, r := range p.resolvers {
		if r.CanHandle(reference) {
			return r
		}
	}
	return nil
}

// Resolve fetches metadata for reference. The returned song is unresolved
// and starts at start.
func (p *Pipeline) Resolve(ctx context.Context, reference string, start time.Duration) (*common.Song, error) {
	reference = strings.TrimSpace(reference)
	r := p.find(reference)
	if r == nil {
		return nil, &ResolutionError{Resolver: "none", Reference: reference, Kind: ErrUnsupportedReference}
	}

	song, err := r.FetchMetadata(ctx, reference)
	if err != nil {
		p.logger.Warn("Failed to fetch metadata",
			pipeline.String("resolver", r.Name()),
			pipeline.String("reference", reference),
			pipeline.Error(err),
		)
		return nil, &ResolutionError{Resolver: r.Name(), Reference: reference, Kind: ErrMetadataUnavailable, Err: err}
	}

	if start > 0 {
		song = song.WithStart(start)
	}

	p.logger.Debug("Resolved reference",
		pipeline.String("resolver", r.Name()),
		pipeline.String("song", song.Name),
	)
	return song, nil
}

// IsPlaylist reports whether reference expands to several songs
func (p *Pipeline) IsPlaylist(reference string) bool {
	if e, ok := p.find(reference).(PlaylistExpander); ok {
		return e.IsPlaylist(reference)
	}
	return false
}

// Expand lists the songs of a playlist reference as unresolved stubs
func (p *Pipeline) Expand(ctx context.Context, reference string) ([]*common.Song, error) {
	r := p.find(reference)
	e, ok := r.(PlaylistExpander)
	if !ok || !e.IsPlaylist(reference) {
		return nil, ErrNotPlaylist
	}

	songs, err := e.Expand(ctx, reference)
	if err != nil {
		return nil, &ResolutionError{Resolver: r.Name(), Reference: reference, Kind: ErrMetadataUnavailable, Err: err}
	}
	return songs, nil
}

// ResolveStream returns a copy of song with a fresh stream locator filled in.
// Signed CDN urls expire, so songs are resolved again on every call unless
// their resolver reports StableLocators.
func (p *Pipeline) ResolveStream(ctx context.Context, song *common.Song) (*common.Song, error) {
	r := p.find(song.Reference)
	if song.IsResolved() {
		if s, ok := r.(StableLocator); ok && s.StableLocators() {
			return song, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	name := "default"
	if r != nil {
		name = r.Name()
	}

	if sr, ok := r.(StreamResolver); ok {
		resolved, err := sr.ResolveStreamLocator(ctx, song)
		if err != nil {
			return nil, &ResolutionError{Resolver: name, Reference: song.Reference, Kind: ErrStreamResolution, Err: err}
		}
		if !resolved.IsResolved() {
			return nil, &ResolutionError{Resolver: name, Reference: song.Reference, Kind: ErrStreamResolution}
		}
		return resolved, nil
	}

	if p.locator == nil {
		return nil, &ResolutionError{Resolver: name, Reference: song.Reference, Kind: ErrStreamResolution,
			Err: errors.New("no stream locator configured")}
	}

	locator, err := p.locator.Locate(ctx, song.Reference)
	if err != nil {
		return nil, &ResolutionError{Resolver: name, Reference: song.Reference, Kind: ErrStreamResolution, Err: err}
	}
	if locator == "" {
		return nil, &ResolutionError{Resolver: name, Reference: song.Reference, Kind: ErrStreamResolution}
	}

	return song.WithLocators(locator, ""), nil
}

// NewDefaultPipeline registers the YouTube, direct file, generic url and
// keyword search resolvers in that order, with yt-dlp as the default locator.
func NewDefaultPipeline(config pipeline.ResolverConfig, logger pipeline.Logger) *Pipeline {
	ytdlp := NewYtdlp(config, logger)
	yt := NewYouTubeResolver(nil, ytdlp, config, logger)

	return NewPipeline(ytdlp, config.LocatorTimeout, logger,
		yt,
		DirectResolver{},
		NewGenericResolver(ytdlp),
		NewSearchResolver(YTSearch(), yt),
	)
}

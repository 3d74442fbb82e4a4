package youtube

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"alfred/internal/services/audio"
	"alfred/pkg/logger"
)

// Resolver implements audio.Resolver for YouTube links and free text.
type Resolver struct {
	provider  VideoProvider
	searcher  Searcher
	playlists PlaylistEnumerator
	log       *logger.Logger
}

// NewResolver wires the three lookups together.
func NewResolver(provider VideoProvider, searcher Searcher, playlists PlaylistEnumerator, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{
		provider:  provider,
		searcher:  searcher,
		playlists: playlists,
		log:       log.WithComponent("resolver"),
	}
}

// Resolve handles playlist links, video links and search text, in that order.
func (r *Resolver) Resolve(ctx context.Context, query string) (*audio.Resolution, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, audio.NewResolveError(audio.NoMatch, query, errors.New("empty query"))
	}

	start := time.Now()
	var (
		res *audio.Resolution
		err error
	)
	switch {
	case IsPlaylistURL(query):
		res, err = r.resolvePlaylist(ctx, query)
	case IsYouTubeURL(query):
		res, err = r.resolveVideo(ctx, query)
	case isURL(query):
		err = audio.NewResolveError(audio.NoMatch, query, errors.New("only YouTube links are supported"))
	default:
		res, err = r.resolveSearch(ctx, query)
	}

	fields := logger.Fields{
		"query":       query,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		r.log.LogResolveEvent("failed", fields)
		return nil, err
	}
	fields["tracks"] = len(res.Tracks)
	fields["failures"] = len(res.Failures)
	r.log.LogResolveEvent("resolved", fields)
	return res, nil
}

func (r *Resolver) resolveVideo(ctx context.Context, link string) (*audio.Resolution, error) {
	t, err := r.provider.Video(ctx, link)
	if err != nil {
		return nil, asResolveError(ctx, link, err)
	}
	return &audio.Resolution{Tracks: []audio.Track{t}}, nil
}

func (r *Resolver) resolveSearch(ctx context.Context, query string) (*audio.Resolution, error) {
	link, err := r.searcher.Search(ctx, query)
	if err != nil {
		return nil, asResolveError(ctx, query, err)
	}
	return r.resolveVideo(ctx, link)
}

// resolvePlaylist resolves every item in order. A failing item becomes one
// entry in Failures. When ctx runs out, the remaining items are reported as a
// single failure.
func (r *Resolver) resolvePlaylist(ctx context.Context, link string) (*audio.Resolution, error) {
	items, err := r.playlists.Enumerate(ctx, link)
	if err != nil {
		return nil, asResolveError(ctx, link, err)
	}
	if len(items) == 0 {
		return nil, audio.NewResolveError(audio.NoMatch, link, errors.New("playlist is empty"))
	}

	res := &audio.Resolution{}
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			res.Failures = append(res.Failures, audio.NewResolveError(audio.NetworkFailure, link,
				fmt.Errorf("%d playlist items skipped: %w", len(items)-i, err)))
			break
		}

		t, err := r.provider.Video(ctx, item)
		if err != nil {
			res.Failures = append(res.Failures, asResolveError(ctx, item, err))
			continue
		}
		res.Tracks = append(res.Tracks, t)
	}
	return res, nil
}

func asResolveError(ctx context.Context, query string, err error) *audio.ResolveError {
	var re *audio.ResolveError
	if errors.As(err, &re) {
		return re
	}
	if ctx.Err() != nil {
		return audio.NewResolveError(audio.NetworkFailure, query, err)
	}
	return audio.NewResolveError(audio.ContentUnavailable, query, err)
}

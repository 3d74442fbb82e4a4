package youtube

import (
	"context"
	"errors"
	"fmt"

	"alfred/internal/services/audio"

	yt "github.com/kkdai/youtube/v2"
)

// VideoProvider turns a single video link into a playable track.
type VideoProvider interface {
	Video(ctx context.Context, rawURL string) (audio.Track, error)
}

// StreamProvider resolves videos with the kkdai client. Stream URLs are
// fetched only when playback starts.
type StreamProvider struct {
	client *yt.Client
}

// NewStreamProvider returns a provider backed by a fresh kkdai client.
func NewStreamProvider() *StreamProvider {
	return &StreamProvider{client: &yt.Client{}}
}

func (p *StreamProvider) Video(ctx context.Context, rawURL string) (audio.Track, error) {
	id, err := VideoID(rawURL)
	if err != nil {
		return audio.Track{}, audio.NewResolveError(audio.NoMatch, rawURL, err)
	}

	video, err := p.client.GetVideoContext(ctx, id)
	if err != nil {
		return audio.Track{}, audio.NewResolveError(classifyVideoError(ctx, err), rawURL, err)
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return audio.Track{}, audio.NewResolveError(audio.ContentUnavailable, rawURL, errors.New("no audio formats found for video"))
	}

	return audio.Track{
		Title:    video.Title,
		Artist:   video.Author,
		Duration: video.Duration,
		URL:      WatchURL(video.ID),
		Source: &streamSource{
			client: p.client,
			video:  video,
			format: &formats[0],
		},
	}, nil
}

func classifyVideoError(ctx context.Context, err error) audio.ResolveErrorKind {
	switch {
	case ctx.Err() != nil:
		return audio.NetworkFailure
	case errors.Is(err, yt.ErrVideoPrivate),
		errors.Is(err, yt.ErrLoginRequired),
		errors.Is(err, yt.ErrNotPlayableInEmbed):
		return audio.ContentUnavailable
	default:
		return audio.NetworkFailure
	}
}

type streamSource struct {
	client *yt.Client
	video  *yt.Video
	format *yt.Format
}

func (s *streamSource) Location(ctx context.Context) (string, error) {
	link, err := s.client.GetStreamURLContext(ctx, s.video, s.format)
	if err != nil {
		return "", fmt.Errorf("get stream url of %s: %w", s.video.ID, err)
	}
	return link, nil
}

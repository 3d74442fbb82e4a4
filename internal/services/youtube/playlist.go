package youtube

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"alfred/internal/services/audio"
	"alfred/pkg/logger"

	yt "github.com/kkdai/youtube/v2"
	"github.com/lrstanley/go-ytdlp"
	ytapi "google.golang.org/api/youtube/v3"
)

const playlistPageSize = 50

var (
	flatEntryPattern = regexp.MustCompile(`https://[^/\s]+/watch\?v=([A-Za-z0-9_-]{11})`)

	errNoPlaylistEntries = errors.New("no video links in yt-dlp output")
)

// PlaylistEnumerator lists the video page links of a playlist, in playlist order.
type PlaylistEnumerator interface {
	Enumerate(ctx context.Context, playlistURL string) ([]string, error)
}

// DataAPIEnumerator pages through playlistItems.list of the Data API.
type DataAPIEnumerator struct {
	service  *ytapi.Service
	maxItems int
}

// NewDataAPIEnumerator returns an enumerator returning at most maxItems links.
func NewDataAPIEnumerator(service *ytapi.Service, maxItems int) *DataAPIEnumerator {
	return &DataAPIEnumerator{service: service, maxItems: maxItems}
}

func (e *DataAPIEnumerator) Enumerate(ctx context.Context, playlistURL string) ([]string, error) {
	id, ok := PlaylistID(playlistURL)
	if !ok {
		return nil, audio.NewResolveError(audio.NoMatch, playlistURL, errors.New("missing list parameter"))
	}

	var links []string
	pageToken := ""
	for {
		call := e.service.PlaylistItems.List([]string{"snippet"}).
			PlaylistId(id).
			MaxResults(playlistPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		response, err := call.Do()
		if err != nil {
			return nil, audio.NewResolveError(classifyAPIError(ctx, err), playlistURL, err)
		}

		for _, item := range response.Items {
			if item.Snippet == nil || item.Snippet.ResourceId == nil || item.Snippet.ResourceId.VideoId == "" {
				continue
			}
			links = append(links, WatchURL(item.Snippet.ResourceId.VideoId))
		}

		if e.maxItems > 0 && len(links) >= e.maxItems {
			return links[:e.maxItems], nil
		}
		if response.NextPageToken == "" {
			return links, nil
		}
		pageToken = response.NextPageToken
	}
}

// ClientEnumerator reads playlists through the kkdai client, no API key needed.
type ClientEnumerator struct {
	client   *yt.Client
	maxItems int
}

// NewClientEnumerator returns an enumerator returning at most maxItems links.
func NewClientEnumerator(maxItems int) *ClientEnumerator {
	return &ClientEnumerator{client: &yt.Client{}, maxItems: maxItems}
}

func (e *ClientEnumerator) Enumerate(ctx context.Context, playlistURL string) ([]string, error) {
	playlist, err := e.client.GetPlaylistContext(ctx, playlistURL)
	if err != nil {
		kind := audio.NetworkFailure
		if errors.Is(err, yt.ErrInvalidPlaylist) {
			kind = audio.ContentUnavailable
		}
		return nil, audio.NewResolveError(kind, playlistURL, err)
	}

	links := make([]string, 0, len(playlist.Videos))
	for _, entry := range playlist.Videos {
		if entry == nil || entry.ID == "" {
			continue
		}
		links = append(links, WatchURL(entry.ID))
		if e.maxItems > 0 && len(links) == e.maxItems {
			break
		}
	}
	return links, nil
}

// FlatPlaylistRunner returns the raw stdout of a flat playlist listing.
type FlatPlaylistRunner func(ctx context.Context, playlistURL string, maxItems int) (string, error)

// YtdlpEnumerator shells out to yt-dlp in flat playlist mode.
type YtdlpEnumerator struct {
	maxItems int
	run      FlatPlaylistRunner
}

// NewYtdlpEnumerator returns an enumerator using the yt-dlp binary on PATH.
func NewYtdlpEnumerator(maxItems int) *YtdlpEnumerator {
	return &YtdlpEnumerator{maxItems: maxItems, run: runFlatPlaylist}
}

func (e *YtdlpEnumerator) Enumerate(ctx context.Context, playlistURL string) ([]string, error) {
	out, err := e.run(ctx, playlistURL, e.maxItems)
	if err != nil {
		return nil, audio.NewResolveError(audio.NetworkFailure, playlistURL, err)
	}

	links, err := ParseFlatPlaylist(out, e.maxItems)
	if err != nil {
		return nil, audio.NewResolveError(audio.MalformedOutput, playlistURL, err)
	}
	return links, nil
}

func runFlatPlaylist(ctx context.Context, playlistURL string, maxItems int) (string, error) {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig().
		FlatPlaylist().
		Print("%(url)s")
	if maxItems > 0 {
		cmd = cmd.PlaylistItems(fmt.Sprintf("1-%d", maxItems))
	}

	res, err := cmd.Run(ctx, playlistURL)
	if err != nil {
		return "", fmt.Errorf("yt-dlp flat playlist: %w", err)
	}
	return res.Stdout, nil
}

// ParseFlatPlaylist extracts watch links from yt-dlp output, one per line.
// Lines that are not watch links are ignored; output with no links at all
// is an error.
func ParseFlatPlaylist(out string, maxItems int) ([]string, error) {
	var links []string
	for _, line := range strings.Split(out, "\n") {
		m := flatEntryPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		links = append(links, WatchURL(m[1]))
		if maxItems > 0 && len(links) == maxItems {
			break
		}
	}
	if len(links) == 0 {
		return nil, errNoPlaylistEntries
	}
	return links, nil
}

// FallbackEnumerator tries Primary first and Fallback when it fails or finds nothing.
type FallbackEnumerator struct {
	Primary  PlaylistEnumerator
	Fallback PlaylistEnumerator
	log      *logger.Logger
}

// NewFallbackEnumerator chains two enumerators. fallback may be nil.
func NewFallbackEnumerator(primary, fallback PlaylistEnumerator, log *logger.Logger) *FallbackEnumerator {
	if log == nil {
		log = logger.Nop()
	}
	return &FallbackEnumerator{Primary: primary, Fallback: fallback, log: log.WithComponent("playlist")}
}

func (e *FallbackEnumerator) Enumerate(ctx context.Context, playlistURL string) ([]string, error) {
	links, err := e.Primary.Enumerate(ctx, playlistURL)
	if err == nil && len(links) > 0 {
		return links, nil
	}
	if e.Fallback == nil || ctx.Err() != nil {
		return links, err
	}

	fields := logger.Fields{"playlist": playlistURL}
	if err != nil {
		fields["error"] = err.Error()
	}
	e.log.Warn("Playlist enumeration failed, using fallback", fields)

	return e.Fallback.Enumerate(ctx, playlistURL)
}

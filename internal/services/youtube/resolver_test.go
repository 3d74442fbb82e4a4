package youtube

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"alfred/internal/services/audio"
)

type stubSource string

func (s stubSource) Location(context.Context) (string, error) { return string(s), nil }

// stubProvider resolves watch links whose id is listed in durations and fails the rest.
type stubProvider struct {
	durations map[string]time.Duration
	calls     []string
	onCall    func()
}

func (p *stubProvider) Video(ctx context.Context, rawURL string) (audio.Track, error) {
	p.calls = append(p.calls, rawURL)
	if p.onCall != nil {
		p.onCall()
	}
	id, err := VideoID(rawURL)
	if err != nil {
		return audio.Track{}, audio.NewResolveError(audio.NoMatch, rawURL, err)
	}
	d, ok := p.durations[id]
	if !ok {
		return audio.Track{}, audio.NewResolveError(audio.ContentUnavailable, rawURL, errors.New("video unavailable"))
	}
	return audio.Track{Title: id, Duration: d, URL: rawURL, Source: stubSource(id)}, nil
}

type stubSearcher struct {
	link  string
	err   error
	calls int
}

func (s *stubSearcher) Search(context.Context, string) (string, error) {
	s.calls++
	return s.link, s.err
}

const (
	idOne   = "11111111111"
	idTwo   = "22222222222"
	idThree = "33333333333"
)

func TestResolveDirectLink(t *testing.T) {
	provider := &stubProvider{durations: map[string]time.Duration{idOne: time.Minute}}
	searcher := &stubSearcher{}
	r := NewResolver(provider, searcher, &stubEnumerator{}, nil)

	res, err := r.Resolve(context.Background(), "  "+WatchURL(idOne)+"  ")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tracks) != 1 || res.Tracks[0].Title != idOne || res.Tracks[0].Duration != time.Minute {
		t.Errorf("tracks = %+v", res.Tracks)
	}
	if searcher.calls != 0 {
		t.Error("search used for a direct link")
	}
}

func TestResolveSearch(t *testing.T) {
	provider := &stubProvider{durations: map[string]time.Duration{idTwo: time.Minute}}

	tests := []struct {
		name     string
		searcher *stubSearcher
		kind     audio.ResolveErrorKind
	}{
		{"match", &stubSearcher{link: WatchURL(idTwo)}, ""},
		{"no results", &stubSearcher{err: audio.NewResolveError(audio.NoMatch, "q", nil)}, audio.NoMatch},
		{"network", &stubSearcher{err: audio.NewResolveError(audio.NetworkFailure, "q", errors.New("dial tcp"))}, audio.NetworkFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(provider, tt.searcher, &stubEnumerator{}, nil)
			res, err := r.Resolve(context.Background(), "some song title")
			if tt.kind == "" {
				if err != nil || len(res.Tracks) != 1 || res.Tracks[0].Title != idTwo {
					t.Fatalf("res=%+v err=%v", res, err)
				}
				return
			}
			if !audio.IsResolveKind(err, tt.kind) {
				t.Errorf("err = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestResolveRejectsOtherLinksAndEmpty(t *testing.T) {
	r := NewResolver(&stubProvider{}, &stubSearcher{}, &stubEnumerator{}, nil)
	for _, q := range []string{"https://soundcloud.com/a/b", "   "} {
		if _, err := r.Resolve(context.Background(), q); !audio.IsResolveKind(err, audio.NoMatch) {
			t.Errorf("Resolve(%q) = %v, want NoMatch", q, err)
		}
	}
}

func TestResolvePlaylistKeepsOrderAndCollectsFailures(t *testing.T) {
	provider := &stubProvider{durations: map[string]time.Duration{
		idOne:   time.Minute,
		idThree: 2 * time.Minute,
	}}
	enumerator := &stubEnumerator{links: []string{WatchURL(idOne), WatchURL(idTwo), WatchURL(idThree)}}
	r := NewResolver(provider, &stubSearcher{}, enumerator, nil)

	res, err := r.Resolve(context.Background(), "https://www.youtube.com/playlist?list=PLx")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tracks) != 2 || res.Tracks[0].Title != idOne || res.Tracks[1].Title != idThree {
		t.Errorf("tracks = %+v", res.Tracks)
	}
	if len(res.Failures) != 1 || !strings.Contains(res.Failures[0].Query, idTwo) || res.Failures[0].Kind != audio.ContentUnavailable {
		t.Errorf("failures = %+v", res.Failures)
	}
}

func TestResolvePlaylistEnumerationFailure(t *testing.T) {
	enumerator := &stubEnumerator{err: audio.NewResolveError(audio.MalformedOutput, "pl", errors.New("bad output"))}
	r := NewResolver(&stubProvider{}, &stubSearcher{}, enumerator, nil)

	_, err := r.Resolve(context.Background(), "https://www.youtube.com/playlist?list=PLx")
	if !audio.IsResolveKind(err, audio.MalformedOutput) {
		t.Errorf("err = %v, want MalformedOutput", err)
	}
}

func TestResolvePlaylistStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &stubProvider{durations: map[string]time.Duration{idOne: time.Minute, idTwo: time.Minute, idThree: time.Minute}}
	provider.onCall = func() {
		if len(provider.calls) == 2 {
			cancel()
		}
	}
	enumerator := &stubEnumerator{links: []string{WatchURL(idOne), WatchURL(idTwo), WatchURL(idThree)}}
	r := NewResolver(provider, &stubSearcher{}, enumerator, nil)

	res, err := r.Resolve(ctx, "https://www.youtube.com/playlist?list=PLx")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tracks) != 2 {
		t.Errorf("tracks = %d, want 2", len(res.Tracks))
	}
	if len(res.Failures) != 1 || res.Failures[0].Kind != audio.NetworkFailure {
		t.Errorf("failures = %+v", res.Failures)
	}
	if len(provider.calls) != 2 {
		t.Errorf("provider called %d times after cancellation", len(provider.calls))
	}
}

func TestResolvePlaylistEmpty(t *testing.T) {
	r := NewResolver(&stubProvider{}, &stubSearcher{}, &stubEnumerator{}, nil)
	if _, err := r.Resolve(context.Background(), "https://www.youtube.com/playlist?list=PLx"); !audio.IsResolveKind(err, audio.NoMatch) {
		t.Errorf("err = %v, want NoMatch", err)
	}
}

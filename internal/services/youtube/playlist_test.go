package youtube

import (
	"context"
	"errors"
	"testing"

	"alfred/internal/services/audio"
)

func TestParseFlatPlaylist(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		max     int
		want    []string
		wantErr bool
	}{
		{
			name: "ordered links",
			out:  "https://www.youtube.com/watch?v=aaaaaaaaaaa\nhttps://www.youtube.com/watch?v=bbbbbbbbbbb\n",
			want: []string{WatchURL("aaaaaaaaaaa"), WatchURL("bbbbbbbbbbb")},
		},
		{
			name: "noise and other hosts",
			out:  "[youtube:tab] Downloading page\r\nhttps://music.youtube.com/watch?v=ccccccccccc\nNA\n",
			want: []string{WatchURL("ccccccccccc")},
		},
		{
			name: "capped",
			out:  "https://www.youtube.com/watch?v=aaaaaaaaaaa\nhttps://www.youtube.com/watch?v=bbbbbbbbbbb\n",
			max:  1,
			want: []string{WatchURL("aaaaaaaaaaa")},
		},
		{name: "empty", out: "", wantErr: true},
		{name: "garbage", out: "ERROR: unable to download\n\x00\x01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFlatPlaylist(tt.out, tt.max)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("link %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestYtdlpEnumeratorErrors(t *testing.T) {
	const link = "https://www.youtube.com/playlist?list=PLx"

	tests := []struct {
		name string
		run  FlatPlaylistRunner
		kind audio.ResolveErrorKind
	}{
		{
			name: "process failure",
			run: func(context.Context, string, int) (string, error) {
				return "", errors.New("exit status 1")
			},
			kind: audio.NetworkFailure,
		},
		{
			name: "unparseable output",
			run: func(context.Context, string, int) (string, error) {
				return "nothing useful", nil
			},
			kind: audio.MalformedOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &YtdlpEnumerator{maxItems: 10, run: tt.run}
			_, err := e.Enumerate(context.Background(), link)
			if !audio.IsResolveKind(err, tt.kind) {
				t.Errorf("err = %v, want %s", err, tt.kind)
			}
		})
	}
}

type stubEnumerator struct {
	links []string
	err   error
	calls int
}

func (s *stubEnumerator) Enumerate(context.Context, string) ([]string, error) {
	s.calls++
	return s.links, s.err
}

func TestFallbackEnumerator(t *testing.T) {
	primaryLinks := []string{WatchURL("aaaaaaaaaaa")}
	fallbackLinks := []string{WatchURL("bbbbbbbbbbb")}

	tests := []struct {
		name          string
		primary       *stubEnumerator
		fallback      *stubEnumerator
		want          []string
		fallbackCalls int
	}{
		{"primary succeeds", &stubEnumerator{links: primaryLinks}, &stubEnumerator{links: fallbackLinks}, primaryLinks, 0},
		{"primary fails", &stubEnumerator{err: errors.New("quota exceeded")}, &stubEnumerator{links: fallbackLinks}, fallbackLinks, 1},
		{"primary empty", &stubEnumerator{}, &stubEnumerator{links: fallbackLinks}, fallbackLinks, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewFallbackEnumerator(tt.primary, tt.fallback, nil)
			got, err := e.Enumerate(context.Background(), "https://www.youtube.com/playlist?list=PLx")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 || got[0] != tt.want[0] {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if tt.fallback.calls != tt.fallbackCalls {
				t.Errorf("fallback called %d times, want %d", tt.fallback.calls, tt.fallbackCalls)
			}
		})
	}
}

func TestFallbackEnumeratorWithoutFallback(t *testing.T) {
	e := NewFallbackEnumerator(&stubEnumerator{err: errors.New("boom")}, nil, nil)
	if _, err := e.Enumerate(context.Background(), "x"); err == nil {
		t.Error("expected the primary error")
	}
}

package youtube

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	videoIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	youtubeURLRegex = regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.|music\.)?(?:youtube\.com|youtu\.be)/\S+`)
)

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// IsYouTubeURL reports whether s points at youtube.com, youtu.be or music.youtube.com.
func IsYouTubeURL(s string) bool {
	return youtubeURLRegex.MatchString(strings.TrimSpace(s))
}

func parseYouTubeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !isURL(raw) {
		raw = "https://" + raw
	}
	return url.Parse(raw)
}

// VideoID extracts the 11 character video id from a watch, short, shorts or embed link.
func VideoID(raw string) (string, error) {
	u, err := parseYouTubeURL(raw)
	if err != nil {
		return "", fmt.Errorf("parse video url: %w", err)
	}

	var id string
	switch host := strings.TrimPrefix(u.Hostname(), "www."); host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			id = strings.TrimPrefix(u.Path, "/shorts/")
		case strings.HasPrefix(u.Path, "/embed/"):
			id = strings.TrimPrefix(u.Path, "/embed/")
		}
	default:
		return "", fmt.Errorf("not a youtube url: %s", raw)
	}

	id = strings.Trim(id, "/")
	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("no video id in %s", raw)
	}
	return id, nil
}

// PlaylistID returns the list parameter of raw.
func PlaylistID(raw string) (string, bool) {
	u, err := parseYouTubeURL(raw)
	if err != nil {
		return "", false
	}
	id := u.Query().Get("list")
	return id, id != ""
}

// IsPlaylistURL reports whether raw names a playlist rather than a single
// video. A watch link that also carries list= plays the single video.
func IsPlaylistURL(raw string) bool {
	if !IsYouTubeURL(raw) {
		return false
	}
	u, err := parseYouTubeURL(raw)
	if err != nil {
		return false
	}
	if u.Query().Get("list") == "" {
		return false
	}
	return u.Path == "/playlist" || u.Query().Get("v") == ""
}

// WatchURL builds the canonical page link of a video.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// PlaylistURL builds the canonical page link of a playlist.
func PlaylistURL(playlistID string) string {
	return "https://www.youtube.com/playlist?list=" + playlistID
}

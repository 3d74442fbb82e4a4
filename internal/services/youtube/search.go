package youtube

import (
	"context"
	"errors"
	"net/http"

	"alfred/internal/services/audio"

	"github.com/ppalone/ytsearch"
	"google.golang.org/api/googleapi"
	ytapi "google.golang.org/api/youtube/v3"
)

// Searcher finds the page link of the best matching video for free text.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// DataAPISearcher uses the YouTube Data API search endpoint.
type DataAPISearcher struct {
	service *ytapi.Service
}

// NewDataAPISearcher wraps an authenticated Data API service.
func NewDataAPISearcher(service *ytapi.Service) *DataAPISearcher {
	return &DataAPISearcher{service: service}
}

func (s *DataAPISearcher) Search(ctx context.Context, query string) (string, error) {
	response, err := s.service.Search.List([]string{"id", "snippet"}).
		Q(query).
		Type("video").
		MaxResults(5).
		Context(ctx).
		Do()
	if err != nil {
		return "", audio.NewResolveError(classifyAPIError(ctx, err), query, err)
	}

	for _, item := range response.Items {
		if item.Id != nil && item.Id.Kind == "youtube#video" && item.Id.VideoId != "" {
			return WatchURL(item.Id.VideoId), nil
		}
	}
	return "", audio.NewResolveError(audio.NoMatch, query, nil)
}

// KeylessSearcher scrapes the public results page. Used when no API key is configured.
type KeylessSearcher struct {
	httpClient *http.Client
}

// NewKeylessSearcher returns a searcher that uses httpClient, or the default client when nil.
func NewKeylessSearcher(httpClient *http.Client) *KeylessSearcher {
	return &KeylessSearcher{httpClient: httpClient}
}

func (s *KeylessSearcher) Search(ctx context.Context, query string) (string, error) {
	c := ytsearch.NewClient(s.httpClient)
	res, err := c.Search(ctx, query)
	if err != nil {
		kind := audio.NetworkFailure
		if ctx.Err() == nil {
			kind = audio.MalformedOutput
		}
		return "", audio.NewResolveError(kind, query, err)
	}

	for _, v := range res.Results {
		if videoIDPattern.MatchString(v.VideoID) {
			return WatchURL(v.VideoID), nil
		}
	}
	return "", audio.NewResolveError(audio.NoMatch, query, nil)
}

func classifyAPIError(ctx context.Context, err error) audio.ResolveErrorKind {
	if ctx.Err() != nil {
		return audio.NetworkFailure
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound, http.StatusForbidden:
			return audio.ContentUnavailable
		}
	}
	return audio.NetworkFailure
}

package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by operations that need a voice connection.
	ErrNotConnected = errors.New("not connected to a voice channel")
	// ErrAlreadyConnected is returned by Join on a connected session.
	ErrAlreadyConnected = errors.New("already connected to a voice channel")
	// ErrQueueEmpty is returned by Skip when there is nothing to skip.
	ErrQueueEmpty = errors.New("queue is empty")
	// ErrUnresolvedTrack is returned when a track has no playable source.
	ErrUnresolvedTrack = errors.New("track has no playable source")

	errSessionClosed = errors.New("session closed")
)

// JoinError wraps a transport failure while connecting to a voice channel.
type JoinError struct {
	GuildID   string
	ChannelID string
	Err       error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join voice channel %s in guild %s: %v", e.ChannelID, e.GuildID, e.Err)
}

func (e *JoinError) Unwrap() error {
	return e.Err
}

// LeaveError reports a voice disconnect that did not finish cleanly. The
// session is gone regardless and the guild can join again.
type LeaveError struct {
	GuildID string
	Err     error
}

func (e *LeaveError) Error() string {
	return fmt.Sprintf("leave voice channel in guild %s: %v", e.GuildID, e.Err)
}

func (e *LeaveError) Unwrap() error {
	return e.Err
}

// StartError reports a queued track that could not start and was dropped.
type StartError struct {
	Track Track
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start %q: %v", e.Track.DisplayTitle(), e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// ResolveErrorKind classifies why a query produced no track.
type ResolveErrorKind string

const (
	NetworkFailure     ResolveErrorKind = "network_failure"
	ContentUnavailable ResolveErrorKind = "content_unavailable"
	MalformedOutput    ResolveErrorKind = "malformed_output"
	NoMatch            ResolveErrorKind = "no_match"
)

// ResolveError describes a failed lookup of a single query or playlist item.
type ResolveError struct {
	Kind  ResolveErrorKind
	Query string
	Err   error
}

func (e *ResolveError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolve %q: %s", e.Query, e.Kind)
	}
	return fmt.Sprintf("resolve %q: %s: %v", e.Query, e.Kind, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// NewResolveError builds a ResolveError.
func NewResolveError(kind ResolveErrorKind, query string, err error) *ResolveError {
	return &ResolveError{Kind: kind, Query: query, Err: err}
}

// IsResolveKind reports whether err is a ResolveError of the given kind.
func IsResolveKind(err error, kind ResolveErrorKind) bool {
	var re *ResolveError
	return errors.As(err, &re) && re.Kind == kind
}

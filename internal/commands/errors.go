package commands

import (
	"context"
	"errors"
	"fmt"

	"alfred/internal/services/audio"
	"alfred/pkg/logger"
	"alfred/pkg/metrics"
)

const replyPrefix = "**[Alfred]** "

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeYouTube    ErrorType = "YOUTUBE"
	ErrorTypeNetwork    ErrorType = "NETWORK"
	ErrorTypeQueue      ErrorType = "QUEUE"
	ErrorTypeVoice      ErrorType = "VOICE"
	ErrorTypePermission ErrorType = "PERMISSION"
	ErrorTypeInternal   ErrorType = "INTERNAL"
)

// BotError represents a structured error with context
type BotError struct {
	Type        ErrorType
	Message     string
	UserMessage string
	Cause       error
	Context     map[string]interface{}
}

// Error implements the error interface
func (e *BotError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *BotError) Unwrap() error {
	return e.Cause
}

// NewBotError creates a new BotError
func NewBotError(errorType ErrorType, message, userMessage string, cause error) *BotError {
	return &BotError{
		Type:        errorType,
		Message:     message,
		UserMessage: userMessage,
		Cause:       cause,
		Context:     make(map[string]interface{}),
	}
}

// WithContext adds context to the error
func (e *BotError) WithContext(key string, value interface{}) *BotError {
	e.Context[key] = value
	return e
}

// NewValidationError reports bad command input back to the user verbatim.
func NewValidationError(message string) *BotError {
	return NewBotError(ErrorTypeValidation, message, message, nil)
}

// FromError converts core errors into user facing bot errors.
func FromError(err error) *BotError {
	var botErr *BotError
	if errors.As(err, &botErr) {
		return botErr
	}

	var joinErr *audio.JoinError
	var leaveErr *audio.LeaveError
	var resolveErr *audio.ResolveError

	switch {
	case errors.Is(err, audio.ErrNotConnected):
		return NewBotError(ErrorTypeVoice, err.Error(),
			"I'm not in a voice channel. Use `join` first.", err)
	case errors.Is(err, audio.ErrAlreadyConnected):
		return NewBotError(ErrorTypeVoice, err.Error(),
			"I'm already in a voice channel. Use `leave` first.", err)
	case errors.Is(err, audio.ErrQueueEmpty):
		return NewBotError(ErrorTypeQueue, err.Error(),
			"Queue is empty - there's nothing to skip!", err)
	case errors.As(err, &joinErr):
		return NewBotError(ErrorTypeVoice, err.Error(),
			"Could not join your voice channel. Make sure I have permission to join and speak.", err).
			WithContext("channel_id", joinErr.ChannelID)
	case errors.As(err, &leaveErr):
		return NewBotError(ErrorTypeVoice, err.Error(),
			"Left the voice channel, but Discord did not confirm it. You can `join` again right away.", err)
	case errors.As(err, &resolveErr):
		return NewBotError(resolveErrorType(resolveErr.Kind), err.Error(), ResolveMessage(resolveErr), err).
			WithContext("query", resolveErr.Query)
	case errors.Is(err, context.DeadlineExceeded):
		return NewBotError(ErrorTypeNetwork, err.Error(),
			"That took too long. Please try again in a moment.", err)
	default:
		return NewBotError(ErrorTypeInternal, err.Error(),
			"An unexpected error occurred. Please try again.", err)
	}
}

func resolveErrorType(kind audio.ResolveErrorKind) ErrorType {
	switch kind {
	case audio.NoMatch:
		return ErrorTypeValidation
	case audio.NetworkFailure:
		return ErrorTypeNetwork
	default:
		return ErrorTypeYouTube
	}
}

// ResolveMessage describes a lookup failure in one line.
func ResolveMessage(err *audio.ResolveError) string {
	switch err.Kind {
	case audio.NoMatch:
		return fmt.Sprintf("No results found for `%s`.", err.Query)
	case audio.ContentUnavailable:
		return fmt.Sprintf("`%s` is unavailable or private.", err.Query)
	case audio.MalformedOutput:
		return fmt.Sprintf("Could not read the listing for `%s`.", err.Query)
	default:
		return fmt.Sprintf("Could not reach YouTube for `%s`. Please try again in a moment.", err.Query)
	}
}

// ErrorHandler handles errors consistently across the bot
type ErrorHandler struct {
	responder Responder
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(responder Responder, m *metrics.Metrics, log *logger.Logger) *ErrorHandler {
	return &ErrorHandler{responder: responder, metrics: m, log: log}
}

// Handle logs err and sends its user message to channelID.
func (eh *ErrorHandler) Handle(err error, channelID string) {
	if err == nil {
		return
	}

	botErr := FromError(err)
	eh.logError(botErr)
	eh.metrics.RecordError(string(botErr.Type))

	if channelID == "" || eh.responder == nil {
		return
	}
	if sendErr := eh.responder.Send(channelID, eh.getUserMessage(botErr)); sendErr != nil {
		eh.log.Error("Failed to send error message to Discord", sendErr, logger.Fields{
			"channel_id": channelID,
		})
	}
}

func (eh *ErrorHandler) logError(err *BotError) {
	fields := logger.Fields{"error_type": string(err.Type)}
	for k, v := range err.Context {
		fields[k] = v
	}

	switch err.Type {
	case ErrorTypeValidation, ErrorTypePermission, ErrorTypeQueue:
		eh.log.Warn(err.Error(), fields)
	case ErrorTypeNetwork:
		eh.log.Info(err.Error(), fields)
	default:
		eh.log.Error("Command failed", err, fields)
	}
}

func (eh *ErrorHandler) getUserMessage(err *BotError) string {
	if err.UserMessage != "" {
		return replyPrefix + err.UserMessage
	}

	switch err.Type {
	case ErrorTypeValidation:
		return replyPrefix + "Invalid command format. Use `help` for usage information."
	case ErrorTypeYouTube:
		return replyPrefix + "YouTube error occurred. The video might be unavailable or private."
	case ErrorTypeNetwork:
		return replyPrefix + "Network error occurred. Please try again in a moment."
	case ErrorTypeVoice:
		return replyPrefix + "Voice channel error. Make sure I have permission to join and speak."
	default:
		return replyPrefix + "An unexpected error occurred. Please try again."
	}
}

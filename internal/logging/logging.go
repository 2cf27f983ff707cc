// Package logging builds the structured loggers shared by the Lodge binaries.
//
// Every log line is a JSON object with a timestamp, a component name and the
// instance it belongs to. Lifecycle events add an event_type field so that
// downstream tooling can filter on them.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Event types emitted by the lifecycle engine and its background workers.
const (
	EventDocumentCreated    = "document_created"
	EventDocumentUpdated    = "document_updated"
	EventDocumentTransition = "document_transition"
	EventRevisionCreated    = "revision_created"
	EventRevisionRestored   = "revision_restored"
	EventValueSetCreated    = "valueset_created"
	EventValueSetTransition = "valueset_transition"
	EventRatingsLocked      = "ratings_locked"
	EventRatingsUnlocked    = "ratings_unlocked"
	EventHookFailed         = "hook_failed"
	EventTxRetry            = "tx_retry"
	EventRebuildCompleted   = "rebuild_completed"
	EventRebuildRecovered   = "rebuild_recovered"
)

// New returns a logger writing JSON lines to w, tagged with component and instance.
// A nil writer defaults to stderr.
func New(w io.Writer, component, instance string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	ctx := zerolog.New(w).With().Timestamp().Str("component", component)
	if instance != "" {
		ctx = ctx.Str("instance", instance)
	}
	return ctx.Logger()
}

// Console returns a human-readable logger for interactive CLI use.
func Console(w io.Writer, component string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		With().Timestamp().Str("component", component).Logger()
}

// Event starts an info-level lifecycle event.
func Event(l zerolog.Logger, eventType string) *zerolog.Event {
	return l.Info().Str("event_type", eventType)
}

// SetLevel parses a level name ("debug", "info", ...) and applies it globally.
// Unknown names leave the current level in place and return an error.
func SetLevel(name string) error {
	if name == "" {
		return nil
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

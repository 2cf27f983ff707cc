// Package resolver turns the short references users type on the command line
// into full document and revision IDs.
package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dyluth/lodge/pkg/datasheet"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// Index lists the IDs a reference can resolve to.
type Index interface {
	ListDocumentIDs(ctx context.Context) ([]string, error)
	RevisionIDs(ctx context.Context, documentID string) ([]string, error)
	RevisionIDBySequence(ctx context.Context, documentID string, sequence int) (string, error)
}

// ResolveDocumentID resolves a full UUID or a unique prefix of at least
// MinShortIDLength characters to a document ID. Full UUIDs are returned as-is;
// the engine reports whether they exist.
func ResolveDocumentID(ctx context.Context, idx Index, ref string) (string, error) {
	if isFullUUID(ref) {
		return ref, nil
	}
	if len(ref) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(ref))
	}
	ids, err := idx.ListDocumentIDs(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to search for document: %w", err)
	}
	return unique("document", ref, ids)
}

// ResolveRevisionID resolves a revision reference within a document. A
// reference is a full UUID, a unique ID prefix, or a sequence number written
// as "3" or "#3".
func ResolveRevisionID(ctx context.Context, idx Index, documentID, ref string) (string, error) {
	if isFullUUID(ref) {
		return ref, nil
	}
	if seq, ok := parseSequence(ref); ok {
		id, err := idx.RevisionIDBySequence(ctx, documentID, seq)
		if datasheet.IsNotFound(err) {
			return "", &NotFoundError{Kind: "revision", ShortID: ref}
		}
		if err != nil {
			return "", fmt.Errorf("failed to look up revision #%d: %w", seq, err)
		}
		return id, nil
	}
	if len(ref) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(ref))
	}
	ids, err := idx.RevisionIDs(ctx, documentID)
	if err != nil {
		return "", fmt.Errorf("failed to search for revision: %w", err)
	}
	return unique("revision", ref, ids)
}

func unique(kind, prefix string, ids []string) (string, error) {
	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", &NotFoundError{Kind: kind, ShortID: prefix}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Kind: kind, ShortID: prefix, Matches: matches}
	}
}

func isFullUUID(ref string) bool {
	return len(ref) == 36 && strings.Count(ref, "-") == 4
}

func parseSequence(ref string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(ref, "#"))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// NotFoundError indicates nothing matched the reference.
type NotFoundError struct {
	Kind    string
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %ss found matching '%s'", e.Kind, e.ShortID)
}

// AmbiguousError indicates several IDs matched the prefix.
type AmbiguousError struct {
	Kind    string
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d %ss", e.ShortID, len(e.Matches), e.Kind)
}

// FormatAmbiguousError creates a user-friendly message listing up to 10 matches.
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: ambiguous short ID '%s' matches %d %ss:\n", err.ShortID, len(err.Matches), err.Kind)

	shown := err.Matches
	if len(shown) > 10 {
		shown = shown[:10]
	}
	for _, m := range shown {
		fmt.Fprintf(&b, "  %s\n", m)
	}
	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	fmt.Fprintf(&b, "\nUse a longer prefix to uniquely identify the %s.", err.Kind)
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}

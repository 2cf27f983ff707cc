// Package printer formats CLI output: coloured status lines, friendly error
// reports for lifecycle failures and tables for revisions and comparisons.
package printer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	blue   = color.New(color.FgBlue)
)

// Out and ErrOut are where messages go. Tests swap them for buffers.
var (
	Out    io.Writer = os.Stdout
	ErrOut io.Writer = os.Stderr
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(Out, msg)
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Fprintf(Out, format, a...)
}

// Warning prints a warning message in yellow
func Warning(format string, a ...any) {
	yellow.Fprintf(Out, "⚠️  %s", fmt.Sprintf(format, a...))
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Fprintf(Out, "→ %s", fmt.Sprintf(format, a...))
}

// Status renders a document status in its lifecycle colour.
func Status(s datasheet.DocumentStatus) string {
	switch s {
	case datasheet.StatusApproved:
		return green.Sprint(s)
	case datasheet.StatusVerified:
		return blue.Sprint(s)
	case datasheet.StatusRejected:
		return red.Sprint(s)
	case datasheet.StatusModifiedDraft:
		return yellow.Sprint(s)
	default:
		return string(s)
	}
}

// Error prints a report with title, explanation and suggestions to ErrOut and
// returns an error carrying only the title, for Cobra.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with key/value details printed after the explanation.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(ErrOut, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(ErrOut, "%s\n", explanation)
	}

	if len(context) > 0 {
		fmt.Fprintf(ErrOut, "\n")
		for _, key := range sortedKeys(context) {
			fmt.Fprintf(ErrOut, "  %s: %s\n", key, context[key])
		}
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(ErrOut, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(ErrOut, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(ErrOut, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(ErrOut, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	return fmt.Errorf("%s", title)
}

// LifecycleError reports a lifecycle failure with a title chosen by its kind.
// Validation issues are listed one per line.
func LifecycleError(err error) error {
	var typed *datasheet.Error
	if !errors.As(err, &typed) {
		return Error("Operation failed", err.Error(), nil)
	}

	explanation := typed.Message
	for _, issue := range typed.Issues {
		explanation += fmt.Sprintf("\n  - %s: %s", issue.Path, issue.Message)
	}
	context := map[string]string{}
	if typed.Op != "" {
		context["Operation"] = typed.Op
	}

	switch typed.Kind {
	case datasheet.KindValidation:
		return ErrorWithContext("Invalid input", explanation, context, nil)
	case datasheet.KindNotFound:
		return ErrorWithContext("Not found", explanation, context,
			[]string{"Check the ID and that --tenant names the owning tenant."})
	case datasheet.KindConflict:
		return ErrorWithContext("Not allowed in the current state", explanation, context,
			[]string{"Run 'lodge doc show' to see the current status and retry."})
	case datasheet.KindUnauthorized:
		return ErrorWithContext("Missing identity", explanation, context,
			[]string{"Pass --tenant and --actor, or set LODGE_TENANT and LODGE_ACTOR."})
	case datasheet.KindCorrupt:
		return ErrorWithContext("Stored data is corrupt", explanation, context, nil)
	default:
		if typed.Err != nil {
			explanation = typed.Err.Error()
		}
		return ErrorWithContext("Storage failure", explanation, context,
			[]string{"Check that Redis is reachable at the configured redis.url."})
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

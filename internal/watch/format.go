package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/lodge/internal/notify"
)

type formatter interface {
	FormatNotification(n *notify.Notification) error
	FormatError(err error) error
}

func newFormatter(format OutputFormat, w io.Writer) formatter {
	if format == OutputFormatJSON {
		return &jsonFormatter{writer: w}
	}
	return &defaultFormatter{writer: w}
}

// defaultFormatter writes one human-readable line per notification.
type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) FormatNotification(n *notify.Notification) error {
	ts := time.UnixMilli(n.SentAtMs).Format("15:04:05")
	_, err := fmt.Fprintf(f.writer, "[%s] 📬 %s doc=%s to=%s\n",
		ts, n.Message, n.DocumentID, strings.Join(n.Recipients, ","))
	return err
}

func (f *defaultFormatter) FormatError(err error) error {
	_, werr := fmt.Fprintf(f.writer, "⚠️  %v\n", err)
	return werr
}

// jsonFormatter writes line-delimited JSON.
type jsonFormatter struct {
	writer io.Writer
}

type jsonEvent struct {
	Event string `json:"event"`
	*notify.Notification
	Error string `json:"error,omitempty"`
}

func (f *jsonFormatter) FormatNotification(n *notify.Notification) error {
	return f.write(jsonEvent{Event: "notification", Notification: n})
}

func (f *jsonFormatter) FormatError(err error) error {
	return f.write(jsonEvent{Event: "error", Error: err.Error()})
}

func (f *jsonFormatter) write(ev jsonEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.writer, string(data))
	return err
}

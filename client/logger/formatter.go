package logger

import (
	"fmt"
	"sort"
	"strings"
)

// Formatter serializes a Message before it is written. A Formatter might
// prepare a line of text for a terminal or encode the message as JSON.
type Formatter interface {
	// Format returns the bytes to write for message.
	Format(message Message) ([]byte, error)
}

// StringFormatter formats messages as single lines of text.
type StringFormatter struct {
	params StringFormatterParams
}

// StringFormatterParams are parameters for StringFormatter.
type StringFormatterParams struct {
	// DateLayout is passed to time.Time.Format. Defaults to RFC3339 with
	// microseconds.
	DateLayout string

	// DisableContextKeySorting writes context keys in map order.
	DisableContextKeySorting bool
}

// compile-time assertion that StringFormatter implements Formatter.
var _ Formatter = &StringFormatter{}

// NewStringFormatter creates a new instance of StringFormatter.
func NewStringFormatter(params StringFormatterParams) *StringFormatter {
	if params.DateLayout == "" {
		params.DateLayout = "2006-01-02T15:04:05.000000Z07:00"
	}

	return &StringFormatter{params: params}
}

// Format implements Formatter.
func (f *StringFormatter) Format(message Message) ([]byte, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %5s [%20s] %s",
		message.Timestamp.Format(f.params.DateLayout),
		message.Level,
		message.Namespace,
		strings.TrimRight(message.Body, "\n"),
	)

	WriteCtx(&b, message.Ctx, !f.params.DisableContextKeySorting)

	b.WriteString("\n")

	return []byte(b.String()), nil
}

// WriteCtx writes " key=value" pairs of ctx to b.
func WriteCtx(b *strings.Builder, ctx Ctx, sorted bool, skip ...string) {
	keys := make([]string, 0, len(ctx))

outer:
	for k := range ctx {
		for _, s := range skip {
			if k == s {
				continue outer
			}
		}

		keys = append(keys, k)
	}

	if sorted {
		sort.Strings(keys)
	}

	for _, k := range keys {
		fmt.Fprintf(b, " %s=%+v", k, ctx[k])
	}
}

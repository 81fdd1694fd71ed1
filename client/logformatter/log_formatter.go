package logformatter

import (
	"fmt"
	"strings"

	"github.com/peer-calls/mediaclient/client/logger"
)

// PeerConnectionKey is the context key moved to the front of each line.
const PeerConnectionKey = "pc_id"

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// LogFormatter formats console output and highlights the peer connection id.
type LogFormatter struct{}

var _ logger.Formatter = &LogFormatter{}

func New() *LogFormatter {
	return &LogFormatter{}
}

func (f *LogFormatter) Format(message logger.Message) ([]byte, error) {
	namespace := message.Namespace

	if l := 20; len(namespace) > l {
		namespace = namespace[len(namespace)-l:]
	}

	var b strings.Builder

	fmt.Fprintf(&b, "%s %5s [%20s] ",
		message.Timestamp.Format(timeLayout),
		message.Level,
		namespace,
	)

	if pcID, ok := message.Ctx[PeerConnectionKey]; ok {
		fmt.Fprintf(&b, "[%v] ", pcID)
	}

	b.WriteString(strings.TrimRight(message.Body, "\n"))

	logger.WriteCtx(&b, message.Ctx, true, PeerConnectionKey)

	b.WriteString("\n")

	return []byte(b.String()), nil
}

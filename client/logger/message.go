package logger

import "time"

// Message is a single log entry handed to a Formatter.
type Message struct {
	// Timestamp is the time the message was logged.
	Timestamp time.Time

	// Namespace is the full namespace of the Logger the message was sent to.
	Namespace string

	// Level is the level of the message.
	Level Level

	// Body is the message text, including the error when there is one.
	Body string

	// Ctx is the merged logger and message context.
	Ctx Ctx
}

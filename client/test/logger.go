package test

import (
	"github.com/peer-calls/mediaclient/client/logformatter"
	"github.com/peer-calls/mediaclient/client/logger"
)

// NewLogger returns a logger configured from MEDIACLIENT_LOG, disabled by
// default.
func NewLogger() logger.Logger {
	return logger.NewFromEnv("MEDIACLIENT_LOG").WithFormatter(logformatter.New())
}

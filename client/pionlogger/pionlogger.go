package pionlogger

import (
	"fmt"

	"github.com/peer-calls/mediaclient/client/logger"
	"github.com/pion/logging"
)

// Factory implements logging.LoggerFactory on top of logger.Logger. All pion
// subsystems are placed under the "pion" namespace.
type Factory struct {
	log logger.Logger
}

var _ logging.LoggerFactory = &Factory{}

func NewFactory(log logger.Logger) *Factory {
	return &Factory{log: log.WithNamespaceAppended("pion")}
}

func (f *Factory) NewLogger(subsystem string) logging.LeveledLogger {
	return &leveled{log: f.log.WithNamespaceAppended(subsystem)}
}

type leveled struct {
	log logger.Logger
}

func (p *leveled) logf(level logger.Level, format string, args []interface{}) {
	if !p.log.IsLevelEnabled(level) {
		return
	}

	msg := fmt.Sprintf(format, args...)

	switch level {
	case logger.LevelTrace:
		_, _ = p.log.Trace(msg, nil)
	case logger.LevelDebug:
		_, _ = p.log.Debug(msg, nil)
	case logger.LevelInfo:
		_, _ = p.log.Info(msg, nil)
	case logger.LevelWarn:
		_, _ = p.log.Warn(msg, nil)
	default:
		_, _ = p.log.Error(msg, nil, nil)
	}
}

func (p *leveled) Trace(msg string) { _, _ = p.log.Trace(msg, nil) }
func (p *leveled) Debug(msg string) { _, _ = p.log.Debug(msg, nil) }
func (p *leveled) Info(msg string)  { _, _ = p.log.Info(msg, nil) }
func (p *leveled) Warn(msg string)  { _, _ = p.log.Warn(msg, nil) }
func (p *leveled) Error(msg string) { _, _ = p.log.Error(msg, nil, nil) }

func (p *leveled) Tracef(format string, args ...interface{}) {
	p.logf(logger.LevelTrace, format, args)
}

func (p *leveled) Debugf(format string, args ...interface{}) {
	p.logf(logger.LevelDebug, format, args)
}

func (p *leveled) Infof(format string, args ...interface{}) {
	p.logf(logger.LevelInfo, format, args)
}

func (p *leveled) Warnf(format string, args ...interface{}) {
	p.logf(logger.LevelWarn, format, args)
}

func (p *leveled) Errorf(format string, args ...interface{}) {
	p.logf(logger.LevelError, format, args)
}

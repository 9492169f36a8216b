package wa

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"

	"wabot/pkg/logger"
)

// waLogger bridges the library's logging interface onto the process
// logger so all output shares one format.
type waLogger struct {
	log *logger.Logger
}

func newWALogger(log *logger.Logger) waLog.Logger {
	return waLogger{log: log}
}

func (w waLogger) Errorf(msg string, args ...any) {
	w.log.ErrorWith(fmt.Sprintf(msg, args...))
}

func (w waLogger) Warnf(msg string, args ...any) {
	w.log.WarnWith(fmt.Sprintf(msg, args...))
}

func (w waLogger) Infof(msg string, args ...any) {
	w.log.InfoWith(fmt.Sprintf(msg, args...))
}

func (w waLogger) Debugf(msg string, args ...any) {
	w.log.DebugWith(fmt.Sprintf(msg, args...))
}

func (w waLogger) Sub(module string) waLog.Logger {
	return waLogger{log: w.log.Component(module)}
}

package freefall

import "go.viam.com/imufreefall/logging"

type eventLogger struct {
	logger logging.Logger
}

// NewLogger returns an Observer that writes every transition to logger.
func NewLogger(logger logging.Logger) Observer {
	return &eventLogger{logger: logger}
}

func (l *eventLogger) OnFreeFallStarted() {
	l.logger.Info("Free fall started")
}

func (l *eventLogger) OnFreeFallFinished() {
	l.logger.Info("Free fall finished")
}

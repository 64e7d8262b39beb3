package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// testAppender routes entries through tb.Log, so output is attributed to the running test and
// discarded for passing tests unless -v is set.
type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns an Appender writing to tb.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb: tb}
}

func (app *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	app.tb.Helper()
	line, err := formatEntry(entry, fields)
	if err != nil {
		return err
	}
	app.tb.Log(line)
	return nil
}

func (app *testAppender) Sync() error {
	return nil
}

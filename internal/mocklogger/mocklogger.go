// Package mocklogger provides the logger plugin used by the container tests.
//
// [ZapLoggerMock] is registered in place of the logger plugin; every named
// logger it hands out writes to the [ObservedLogs] returned by ZapTestLogger.
package mocklogger

import (
	"context"

	"github.com/roadrunner-server/endure/v2/dep"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type ObservedLogs = observer.ObservedLogs

type Logger interface {
	NamedLogger(string) *zap.Logger
}

type ZapLoggerMock struct {
	l *zap.Logger
}

func ZapTestLogger(enab zapcore.LevelEnabler) (*ZapLoggerMock, *ObservedLogs) {
	core, logs := observer.New(enab)
	obsLog := zap.New(core, zap.Development())

	return &ZapLoggerMock{
		l: obsLog,
	}, logs
}

func (z *ZapLoggerMock) Init() error {
	return nil
}

func (z *ZapLoggerMock) Serve() chan error {
	return make(chan error, 1)
}

func (z *ZapLoggerMock) Stop(context.Context) error {
	return z.l.Sync()
}

func (z *ZapLoggerMock) Provides() []*dep.Out {
	return []*dep.Out{
		dep.Bind((*Logger)(nil), z.ProvideZapLogger),
	}
}

func (z *ZapLoggerMock) Weight() uint {
	return 100
}

func (z *ZapLoggerMock) ProvideZapLogger() *Log {
	return &Log{base: z.l}
}

func (z *ZapLoggerMock) Name() string {
	return "logs"
}

type Log struct {
	base *zap.Logger
}

func (l *Log) NamedLogger(name string) *zap.Logger {
	return l.base.Named(name)
}

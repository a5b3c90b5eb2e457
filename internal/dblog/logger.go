// Package dblog provides a small structured-logging facade so the
// storage layers don't hard-code a specific logging library. The default
// implementation is backed by zap; callers can supply their own.
package dblog

import "go.uber.org/zap"

// Logger is the minimal interface the storage layers log through.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// Nop discards every log call. Used when no logger is configured.
type Nop struct{}

func (Nop) Debug(string, ...any) {}
func (Nop) Info(string, ...any)  {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Error(string, ...any) {}

// Zap wraps a *zap.Logger to implement Logger.
type Zap struct {
	l *zap.SugaredLogger
}

// NewZap wraps an existing zap logger.
func NewZap(l *zap.Logger) *Zap {
	return &Zap{l: l.Sugar()}
}

// NewDefault builds a production-configured zap logger at debug level
// wrapped as a Logger.
func NewDefault() Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	l, err := cfg.Build()
	if err != nil {
		return Nop{}
	}
	return NewZap(l)
}

func (z *Zap) Debug(msg string, kv ...any) { z.l.Debugw(msg, kv...) }
func (z *Zap) Info(msg string, kv ...any)  { z.l.Infow(msg, kv...) }
func (z *Zap) Warn(msg string, kv ...any)  { z.l.Warnw(msg, kv...) }
func (z *Zap) Error(msg string, kv ...any) { z.l.Errorw(msg, kv...) }

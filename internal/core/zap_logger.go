package core

import "go.uber.org/zap"

// ZapLogger adapts a zap sugared logger to the engine's Logger interface.
type ZapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger wraps the given zap logger. Passing nil builds a production
// logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l, _ = zap.NewProduction()
	}
	return &ZapLogger{s: l.Sugar()}
}

// Debug logs at debug level with alternating key-value context.
func (z *ZapLogger) Debug(msg string, kv ...any) { z.s.Debugw(msg, kv...) }

// Info logs at info level with alternating key-value context.
func (z *ZapLogger) Info(msg string, kv ...any) { z.s.Infow(msg, kv...) }

// Warn logs at warn level with alternating key-value context.
func (z *ZapLogger) Warn(msg string, kv ...any) { z.s.Warnw(msg, kv...) }

// Error logs at error level with alternating key-value context.
func (z *ZapLogger) Error(msg string, kv ...any) { z.s.Errorw(msg, kv...) }

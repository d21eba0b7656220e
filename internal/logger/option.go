package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// minLevelCore raises the threshold of the wrapped core. An entry is written
// only when both the wrapped core and level accept it.
type minLevelCore struct {
	zapcore.Core

	level zapcore.Level
}

// Enabled reports whether l passes both thresholds.
func (c *minLevelCore) Enabled(l zapcore.Level) bool {
	return c.level.Enabled(l) && c.Core.Enabled(l)
}

// Check adds the core to ce when the entry level is enabled.
//
//nolint:gocritic // AddCore requires ent to be passed by value.
func (c *minLevelCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

// With keeps the raised threshold on the derived core.
//
//nolint:ireturn,nolintlint // Returning zapcore.Core is intended for zap integration.
func (c *minLevelCore) With(fields []zapcore.Field) zapcore.Core {
	return &minLevelCore{
		Core:  c.Core.With(fields),
		level: c.level,
	}
}

// WithLevel wraps the logger core so that entries below lvl are dropped.
// It never lowers the level the core was built with.
//
//nolint:ireturn,nolintlint // Returning zap.Option is intended for zap integration.
func WithLevel(lvl zapcore.Level) zap.Option {
	return zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &minLevelCore{Core: core, level: lvl}
	})
}

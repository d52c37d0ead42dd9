package sim

import (
	"context"
	"log/slog"
)

// LogHook is a hook that writes every invocation into a structured logger.
type LogHook struct {
	Logger *slog.Logger
	Level  slog.Level

	// Positions limits the positions that are logged. All positions are
	// logged when it is empty.
	Positions []*HookPos
}

// NewLogHook returns a LogHook that logs at the given level.
func NewLogHook(logger *slog.Logger, level slog.Level, pos ...*HookPos) *LogHook {
	return &LogHook{
		Logger:    logger,
		Level:     level,
		Positions: pos,
	}
}

// Func writes the hook site into the logger.
func (h *LogHook) Func(ctx HookCtx) {
	if !h.interested(ctx.Pos) {
		return
	}

	if !h.Logger.Enabled(context.Background(), h.Level) {
		return
	}

	attrs := make([]any, 0, 6)
	if named, ok := ctx.Domain.(Named); ok {
		attrs = append(attrs, "domain", named.Name())
	}

	if ctx.Item != nil {
		attrs = append(attrs, "item", ctx.Item)
	}

	if ctx.Detail != nil {
		attrs = append(attrs, "detail", ctx.Detail)
	}

	h.Logger.Log(context.Background(), h.Level, ctx.Pos.Name, attrs...)
}

func (h *LogHook) interested(pos *HookPos) bool {
	if len(h.Positions) == 0 {
		return true
	}

	for _, p := range h.Positions {
		if p == pos {
			return true
		}
	}

	return false
}

package pool

import (
	"context"
	"log/slog"
)

// disabledHandler drops every record; it is the default so an embedded pool
// stays quiet until WithLogger is given.
type disabledHandler struct{}

func (disabledHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (disabledHandler) Handle(context.Context, slog.Record) error { return nil }
func (disabledHandler) WithAttrs([]slog.Attr) slog.Handler        { return disabledHandler{} }
func (disabledHandler) WithGroup(string) slog.Handler             { return disabledHandler{} }

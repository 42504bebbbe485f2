package logx

import (
	"context"

	"pkt.systems/pmdesk/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	userKey contextKey = iota
	tabKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithUser annotates the logger with the user id if present.
func WithUser(ctx context.Context, userID schema.UserID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if userID != "" {
		if current, ok := ctx.Value(userKey).(schema.UserID); ok && current == userID {
			return log
		}
		log = log.With("user", userID)
	}
	return log
}

// WithUserTab annotates the logger with user and tab key.
func WithUserTab(ctx context.Context, userID schema.UserID, key schema.TabKey) pslog.Logger {
	log := WithUser(ctx, userID)
	if key != "" {
		if current, ok := ctx.Value(tabKey).(schema.TabKey); ok && current == key {
			return log
		}
		log = log.With("tab", key)
	}
	return log
}

// WithCell annotates the logger with a grid cell id and, when known, its view type.
func WithCell(log pslog.Logger, cellID schema.CellID, viewType schema.ViewType) pslog.Logger {
	if cellID != "" {
		log = log.With("cell", cellID)
	}
	if viewType != "" {
		log = log.With("view", viewType)
	}
	return log
}

// WithArrangement annotates the logger with a saved arrangement.
func WithArrangement(log pslog.Logger, id schema.ArrangementID, name string) pslog.Logger {
	if id != "" {
		log = log.With("arrangement", id)
	}
	if name != "" {
		log = log.With("arrangement_name", name)
	}
	return log
}

// ContextWithUser stores the user marker on the context for log de-duplication.
func ContextWithUser(ctx context.Context, userID schema.UserID) context.Context {
	if ctx == nil || userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey, userID)
}

// ContextWithTab stores the tab marker on the context for log de-duplication.
func ContextWithTab(ctx context.Context, key schema.TabKey) context.Context {
	if ctx == nil || key == "" {
		return ctx
	}
	return context.WithValue(ctx, tabKey, key)
}

// ContextWithUserLogger attaches the logger and user marker to the context.
func ContextWithUserLogger(ctx context.Context, log pslog.Logger, userID schema.UserID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithUser(ctx, userID)
}

// ContextWithUserTabLogger attaches the logger and user/tab markers to the context.
func ContextWithUserTabLogger(ctx context.Context, log pslog.Logger, userID schema.UserID, key schema.TabKey) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithTab(ContextWithUser(ctx, userID), key)
}

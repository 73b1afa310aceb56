// Package context carries request-scoped identity on a context.Context
package context

import (
	"context"

	"github.com/Ramsey-B/clover/pkg/models"
)

type ContextKey string

var (
	RequestIDKey = ContextKey("X-Request-Id")
	MethodKey    = ContextKey("X-Method")
	RouteKey     = ContextKey("X-Route")
	RemoteIPKey  = ContextKey("X-Remote-Ip")
	UserIDKey    = ContextKey("X-User-Id")
	UserRoleKey  = ContextKey("X-User-Role")
)

func lookup[T any](ctx context.Context, key ContextKey, fallback T) T {
	if v, ok := ctx.Value(key).(T); ok {
		return v
	}
	return fallback
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string { return lookup(ctx, RequestIDKey, "") }

func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func GetUserID(ctx context.Context) string { return lookup(ctx, UserIDKey, "") }

func SetUserRole(ctx context.Context, role models.Role) context.Context {
	return context.WithValue(ctx, UserRoleKey, role)
}

// GetUserRole defaults to viewer when no role was set
func GetUserRole(ctx context.Context) models.Role {
	return lookup(ctx, UserRoleKey, models.RoleViewer)
}

// GetActor combines the user id and role set by the context middleware
func GetActor(ctx context.Context) models.Actor {
	return models.Actor{ID: GetUserID(ctx), Role: GetUserRole(ctx)}
}

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, MethodKey, method)
}

func GetMethod(ctx context.Context) string { return lookup(ctx, MethodKey, "") }

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

func GetRoute(ctx context.Context) string { return lookup(ctx, RouteKey, "") }

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, RemoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string { return lookup(ctx, RemoteIPKey, "") }

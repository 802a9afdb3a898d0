package utils

import (
	"context"

	"github.com/evnsoft/clubshift_backend/appctx"
)

// Alias the shared context key type so existing code keeps working.
type contextKey = appctx.ContextKey

var (
	ContextKeyActorId       = appctx.ContextKeyActorId
	ContextKeyActorName     = appctx.ContextKeyActorName
	ContextKeyCapabilities  = appctx.ContextKeyCapabilities
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyIsController  = appctx.ContextKeyIsController
)

// Capabilities the bot gateway can grant an actor. The gateway owns the
// role model; the engine only checks for the capability strings it cares
// about before privileged operations.
const (
	CapabilityCashHandling = "cash_handling"
	CapabilityCatalogAdmin = "catalog_admin"
)

func GetActorIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyActorId)
}

func GetActorNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyActorName)
}

func GetCapabilitiesFromContext(ctx context.Context) ([]string, bool) {
	return appctx.GetStringSlice(ctx, ContextKeyCapabilities)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetIsControllerFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeyIsController)
}

func SetActorIdInContext(ctx context.Context, actorId string) context.Context {
	return appctx.Set(ctx, ContextKeyActorId, actorId)
}

func SetActorNameInContext(ctx context.Context, actorName string) context.Context {
	return appctx.Set(ctx, ContextKeyActorName, actorName)
}

func SetCapabilitiesInContext(ctx context.Context, capabilities []string) context.Context {
	return appctx.Set(ctx, ContextKeyCapabilities, capabilities)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetIsControllerInContext(ctx context.Context, isController bool) context.Context {
	return appctx.Set(ctx, ContextKeyIsController, isController)
}

// ActorHasCapability reports whether the acting user carries the capability.
// Controllers pass every check.
func ActorHasCapability(ctx context.Context, capability string) bool {
	if isController, ok := GetIsControllerFromContext(ctx); ok && isController {
		return true
	}
	capabilities, ok := GetCapabilitiesFromContext(ctx)
	if !ok {
		return false
	}
	for _, c := range capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

package utils

import (
	"context"
	"testing"
)

func TestActorHasCapability(t *testing.T) {
	ctx := context.Background()

	if ActorHasCapability(ctx, CapabilityCashHandling) {
		t.Fatal("empty context must not grant capabilities")
	}

	ctx = SetCapabilitiesInContext(ctx, []string{CapabilityCatalogAdmin})
	if ActorHasCapability(ctx, CapabilityCashHandling) {
		t.Fatal("capability not in the list must be denied")
	}
	if !ActorHasCapability(ctx, CapabilityCatalogAdmin) {
		t.Fatal("granted capability must pass")
	}

	// Controllers bypass the capability list entirely.
	controller := SetIsControllerInContext(context.Background(), true)
	if !ActorHasCapability(controller, CapabilityCashHandling) {
		t.Fatal("controller must pass every capability check")
	}
}

func TestActorContextRoundTrip(t *testing.T) {
	ctx := SetActorIdInContext(context.Background(), "operator-7")
	ctx = SetActorNameInContext(ctx, "Оператор")
	ctx = SetCorrelationIdInContext(ctx, "corr-1")

	if id, ok := GetActorIdFromContext(ctx); !ok || id != "operator-7" {
		t.Fatalf("actor id round trip failed: %q %v", id, ok)
	}
	if name, ok := GetActorNameFromContext(ctx); !ok || name != "Оператор" {
		t.Fatalf("actor name round trip failed: %q %v", name, ok)
	}
	if corr, ok := GetCorrelationIdFromContext(ctx); !ok || corr != "corr-1" {
		t.Fatalf("correlation id round trip failed: %q %v", corr, ok)
	}
}

package services_test

import (
	"context"
	"testing"

	"embysub/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithUserID(ctx, "user-1")
	ctx = services.WithRunID(ctx, "run-7")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.UserIDFromContext(ctx); !ok || id != "user-1" {
		t.Fatalf("unexpected user id: %v %v", id, ok)
	}
	if run, ok := services.RunIDFromContext(ctx); !ok || run != "run-7" {
		t.Fatalf("unexpected run id: %v %v", run, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithUserID(ctx, "")
	if _, ok := services.UserIDFromContext(ctx); ok {
		t.Fatal("expected no user value")
	}
}

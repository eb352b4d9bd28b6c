package services_test

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"embysub/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternal, "emby", "items", "lookup failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternal) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"emby", "items", "lookup failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		marker error
		want   int
	}{
		{services.ErrValidation, http.StatusBadRequest},
		{services.ErrConflict, http.StatusBadRequest},
		{services.ErrUnauthorized, http.StatusUnauthorized},
		{services.ErrForbidden, http.StatusForbidden},
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrExternal, http.StatusBadGateway},
		{services.ErrTransient, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		err := fmt.Errorf("outer: %w", services.Wrap(tc.marker, "requests", "create", "x", nil))
		if got := services.HTTPStatus(err); got != tc.want {
			t.Fatalf("marker %v: expected %d, got %d", tc.marker, tc.want, got)
		}
	}
	if got := services.HTTPStatus(nil); got != http.StatusOK {
		t.Fatalf("expected 200 for nil, got %d", got)
	}
}

func TestDetailStripsMarker(t *testing.T) {
	err := services.Wrap(services.ErrNotFound, "", "", "Request not found", nil)
	if got := services.Detail(err); got != "Request not found" {
		t.Fatalf("unexpected detail %q", got)
	}
	plain := errors.New("plain")
	if got := services.Detail(plain); got != "plain" {
		t.Fatalf("unexpected detail %q", got)
	}
}

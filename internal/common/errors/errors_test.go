package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNotFound(t *testing.T) {
	err := NotFound("task", "abc-123")
	if err.Kind != KindNotFound {
		t.Errorf("expected kind %s, got %s", KindNotFound, err.Kind)
	}
	if !IsNotFound(err) {
		t.Error("expected IsNotFound to be true")
	}
	if IsTransient(err) {
		t.Error("expected IsTransient to be false")
	}
	if err.HTTPStatus() != http.StatusNotFound {
		t.Errorf("expected 404, got %d", err.HTTPStatus())
	}
}

func TestTransientWrapsUnderlying(t *testing.T) {
	inner := errors.New("database is locked")
	err := Transient("upsert agent activity", inner)

	if !IsTransient(err) {
		t.Error("expected IsTransient to be true")
	}
	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to find the wrapped error")
	}
	if err.HTTPStatus() != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", err.HTTPStatus())
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("resolve block: %w", Conflict("open blocker already exists"))
	if !IsConflict(err) {
		t.Error("expected IsConflict to see through fmt.Errorf wrapping")
	}

	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatal("expected errors.As to extract StoreError")
	}
	if se.Kind != KindConflict {
		t.Errorf("expected kind %s, got %s", KindConflict, se.Kind)
	}
}

func TestFatal(t *testing.T) {
	err := Fatal("schema init failed", errors.New("disk full"))
	if !IsFatal(err) {
		t.Error("expected IsFatal to be true")
	}
	if IsNotFound(err) || IsConflict(err) || IsTransient(err) {
		t.Error("fatal error matched another kind")
	}
	if err.HTTPStatus() != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", err.HTTPStatus())
	}
}

func TestIsHelpersRejectPlainErrors(t *testing.T) {
	plain := errors.New("some error")
	if IsNotFound(plain) || IsConflict(plain) || IsTransient(plain) || IsFatal(plain) {
		t.Error("plain error should not match any StoreError kind")
	}
}

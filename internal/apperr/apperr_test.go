package apperr

import (
	"errors"
	"testing"
)

func TestNewIsExposable(t *testing.T) {
	err := New(InvalidRequest, "bad %s", "input")
	if !err.Expose {
		t.Error("expected New() errors to be exposable")
	}
	if err.Status() != 400 {
		t.Errorf("Status() = %d, want 400", err.Status())
	}
	if err.Error() == "" {
		t.Error("expected non-empty error message")
	}
}

func TestWrapIsNotExposable(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(PersistFailed, cause, "writing record")
	if err.Expose {
		t.Error("expected Wrap() errors not to be exposable")
	}
	if err.Status() != 500 {
		t.Errorf("Status() = %d, want 500", err.Status())
	}
	if errors.Unwrap(err) == nil {
		t.Error("expected Wrap() error to unwrap to its cause")
	}
}

func TestStatusDefaultsTo500ForUnknownKind(t *testing.T) {
	err := &Error{Kind: Kind("SomethingNovel")}
	if err.Status() != 500 {
		t.Errorf("Status() = %d, want 500 for unmapped kind", err.Status())
	}
}

func TestReportDoesNotPanicOnNil(t *testing.T) {
	Report(nil)
}

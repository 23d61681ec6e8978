package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrKeyConflict", ErrKeyConflict},
		{"ErrNotSupported", ErrNotSupported},
		{"ErrBackendUnavailable", ErrBackendUnavailable},
		{"ErrListFailed", ErrListFailed},
		{"ErrUploadFailed", ErrUploadFailed},
		{"ErrMissingParameter", ErrMissingParameter},
		{"ErrBatchTooLarge", ErrBatchTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Errorf("%s should not be nil", tt.name)
			}
			if tt.err.Error() == "" {
				t.Errorf("%s should have error message", tt.name)
			}
		})
	}
}

func TestRelayError(t *testing.T) {
	baseErr := errors.New("base error")
	relayErr := E("TestOp", ErrNotFound, baseErr, "extra details")

	t.Run("Error message format", func(t *testing.T) {
		msg := relayErr.Error()
		if msg == "" {
			t.Error("error message should not be empty")
		}
		// Should contain operation, kind, and details
		if !strings.Contains(msg, "TestOp") {
			t.Error("error message should contain operation")
		}
	})

	t.Run("Unwrap", func(t *testing.T) {
		unwrapped := errors.Unwrap(relayErr)
		if unwrapped != baseErr {
			t.Errorf("Unwrap() = %v, want %v", unwrapped, baseErr)
		}
	})

	t.Run("Is ErrNotFound", func(t *testing.T) {
		if !errors.Is(relayErr, ErrNotFound) {
			t.Error("errors.Is should match ErrNotFound")
		}
	})

	t.Run("Is base error", func(t *testing.T) {
		if !errors.Is(relayErr, baseErr) {
			t.Error("errors.Is should match base error")
		}
	})
}

func TestE_WithoutDetails(t *testing.T) {
	err := E("Op", ErrKeyConflict, nil)

	msg := err.Error()
	if msg == "" {
		t.Error("error message should not be empty")
	}
}

func TestWrap(t *testing.T) {
	t.Run("Wrap nil", func(t *testing.T) {
		if Wrap("Op", nil) != nil {
			t.Error("Wrap(nil) should return nil")
		}
	})

	t.Run("Wrap error", func(t *testing.T) {
		baseErr := errors.New("base")
		wrapped := Wrap("Op", baseErr)
		if wrapped == nil {
			t.Error("Wrap should return wrapped error")
		}
		if !errors.Is(wrapped, baseErr) {
			t.Error("wrapped error should match base")
		}
	})
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"ErrNotFound", ErrNotFound, true},
		{"wrapped ErrNotFound", E("Op", ErrNotFound, nil), true},
		{"other error", ErrKeyConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsKeyConflict(t *testing.T) {
	if !IsKeyConflict(ErrKeyConflict) {
		t.Error("IsKeyConflict(ErrKeyConflict) should be true")
	}
	if IsKeyConflict(ErrNotFound) {
		t.Error("IsKeyConflict(ErrNotFound) should be false")
	}
}

func TestIsNotSupported(t *testing.T) {
	if !IsNotSupported(ErrNotSupported) {
		t.Error("IsNotSupported(ErrNotSupported) should be true")
	}
	if IsNotSupported(E("Op", ErrNotSupported, nil)) != true {
		t.Error("IsNotSupported should match wrapped errors")
	}
	if IsNotSupported(ErrNotFound) {
		t.Error("IsNotSupported(ErrNotFound) should be false")
	}
}

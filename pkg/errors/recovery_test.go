package errors

import (
	"errors"
	"strings"
	"testing"
)

// TestRecover_WithPanic tests the Recover function when a panic occurs
func TestRecover_WithPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "TestOperation")
		panic("test panic message")
	}

	err := testFunc()
	if err == nil {
		t.Fatal("Expected error from recovered panic, got nil")
	}

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected PanicError, got %T", err)
	}
	if panicErr.Operation != "TestOperation" {
		t.Errorf("Expected operation 'TestOperation', got '%s'", panicErr.Operation)
	}
	if panicErr.StackTrace == "" {
		t.Error("Expected non-empty stack trace")
	}
	if panicErr.Error() != "panic in TestOperation: test panic message" {
		t.Errorf("unexpected message %q", panicErr.Error())
	}
}

// TestRecover_WithoutPanic tests the Recover function when no panic occurs
func TestRecover_WithoutPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "TestOperation")
		return nil
	}
	if err := testFunc(); err != nil {
		t.Fatalf("Expected no error when no panic occurs, got: %v", err)
	}
}

func TestRecover_WrapsExistingError(t *testing.T) {
	original := errors.New("original")
	testFunc := func() (err error) {
		defer Recover(&err, "Op")
		err = original
		panic("boom")
	}
	err := testFunc()
	if !errors.Is(err, original) {
		t.Errorf("expected wrapped original error, got %v", err)
	}
	if !strings.Contains(err.Error(), "panic in Op: boom") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestPanicError_UnwrapsErrorValue(t *testing.T) {
	cause := errors.New("index out of range")
	err := SafeExecute("fit", func() error { panic(cause) })
	if !errors.Is(err, cause) {
		t.Errorf("expected panic value to be unwrapped, got %v", err)
	}
}

func TestSafeExecute(t *testing.T) {
	tests := []struct {
		name    string
		fn      func() error
		wantErr bool
		isPanic bool
	}{
		{"success", func() error { return nil }, false, false},
		{"returns error", func() error { return errors.New("plain") }, true, false},
		{"panics", func() error { var s []int; _ = s[3]; return nil }, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SafeExecute("trial", tt.fn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("wantErr %v, got %v", tt.wantErr, err)
			}
			var pe *PanicError
			if errors.As(err, &pe) != tt.isPanic {
				t.Errorf("isPanic %v, got %T", tt.isPanic, err)
			}
		})
	}
}

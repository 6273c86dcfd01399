package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeConfig, "dependency %q not defined", "b.py")

	if err.Code != ErrCodeConfig {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeConfig)
	}

	if err.Message != `dependency "b.py" not defined` {
		t.Errorf("Message = %v, want %v", err.Message, `dependency "b.py" not defined`)
	}

	expected := `CONFIG_ERROR: dependency "b.py" not defined`
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("exec format error")
	err := Wrap(ErrCodeLaunch, cause, "start a.py")

	if err.Code != ErrCodeLaunch {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeLaunch)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}

	expected := "LAUNCH_ERROR: start a.py: exec format error"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWithNodeAndDetail(t *testing.T) {
	err := New(ErrCodeNodeFailure, "exited with code 3").WithNode("c.py").WithDetail("Traceback ...")

	if err.Node != "c.py" {
		t.Errorf("Node = %q, want %q", err.Node, "c.py")
	}
	if Detail(err) != "Traceback ..." {
		t.Errorf("Detail() = %q, want %q", Detail(err), "Traceback ...")
	}
	if Detail(errors.New("plain")) != "" {
		t.Error("Detail() of plain error should be empty")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeLockHeld, "test"),
			code:     ErrCodeLockHeld,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeLockHeld, "test"),
			code:     ErrCodeLock,
			expected: false,
		},
		{
			name:     "wrapped with fmt",
			err:      fmt.Errorf("run: %w", New(ErrCodeNodeTimeout, "inner")),
			code:     ErrCodeNodeTimeout,
			expected: true,
		},
		{
			name:     "outer code wins",
			err:      Wrap(ErrCodeResourceTimeout, New(ErrCodeInternal, "inner"), "outer"),
			code:     ErrCodeResourceTimeout,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeConfig,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeConfig,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{"Error type", New(ErrCodeDeadlineExceeded, "test"), ErrCodeDeadlineExceeded},
		{"plain error", errors.New("plain"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"Error type", New(ErrCodeConfig, "friendly message"), "friendly message"},
		{"plain error", errors.New("plain error"), "plain error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Errorf("ExitCode(nil) = %d, want 0", got)
	}
	if got := ExitCode(context.Canceled); got != 130 {
		t.Errorf("ExitCode(context.Canceled) = %d, want 130", got)
	}
	if got := ExitCode(errors.New("boom")); got != 1 {
		t.Errorf("ExitCode(plain) = %d, want 1", got)
	}

	fatal := []Code{
		ErrCodeConfig, ErrCodeLockHeld, ErrCodeLock, ErrCodeLaunch,
		ErrCodeNodeFailure, ErrCodeNodeTimeout, ErrCodeDeadlineExceeded,
		ErrCodeResourceTimeout, ErrCodeCycleOrIncomplete,
	}
	seen := make(map[int]Code)
	for _, code := range fatal {
		got := ExitCode(fmt.Errorf("wrapped: %w", New(code, "x")))
		if got == 0 {
			t.Errorf("ExitCode(%s) = 0, want nonzero", code)
		}
		if prev, dup := seen[got]; dup {
			t.Errorf("ExitCode(%s) = %d, already used by %s", code, got, prev)
		}
		seen[got] = code
	}
}

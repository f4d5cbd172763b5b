package backend

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"run not found", ErrNotFound, "RUN001"},
		{"wrapped run not found", fmt.Errorf("get run: %w", ErrNotFound), "RUN001"},
		{"limiter busy", ErrTooManyRuns, "RUN002"},
		{"deadline", errors.New("process: context deadline exceeded"), "RUN003"},
		{"cancelled", errors.New("context canceled"), "RUN004"},
		{"file too large", errors.New("file too large: a.csv"), "FILE001"},
		{"no file", ErrNoFiles, "FILE002"},
		{"bad mapping", errors.New("invalid mapping: unexpected end of JSON input"), "MAP001"},
		{"connection refused", errors.New("dial tcp: connection refused"), "DB001"},
		{"case insensitive", errors.New("Connection Reset by peer"), "DB002"},
		{"unknown falls back", errors.New("something strange"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError(%v).Code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
		})
	}
}

func TestMapError_UserError(t *testing.T) {
	msg := UserMessage{Message: "custom", Action: "do this", Code: "X001"}
	err := fmt.Errorf("wrapped: %w", &UserError{Msg: msg, Err: errors.New("duplicate key")})

	if got := MapError(err); got != msg {
		t.Errorf("MapError = %+v, want %+v", got, msg)
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrTooManyRuns)
	want := "System is busy processing other runs (Code: RUN002). Please wait a moment and try again"
	if got != want {
		t.Errorf("FormatUserError = %q, want %q", got, want)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("IsUserFacing(nil) = true, want false")
	}
	if !IsUserFacing(ErrNotFound) {
		t.Error("IsUserFacing(ErrNotFound) = false, want true")
	}
	if IsUserFacing(errors.New("boom")) {
		t.Error("IsUserFacing(boom) = true, want false")
	}
}

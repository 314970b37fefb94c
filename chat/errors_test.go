package chat

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil",
			err:  nil,
			want: false,
		},
		{
			name: "tagged transient",
			err:  NewTransientError(errors.New("bad gateway")),
			want: true,
		},
		{
			name: "wrapped transient",
			err:  fmt.Errorf("send to group: %w", NewTransientError(errors.New("502"))),
			want: true,
		},
		{
			name: "network timeout",
			err:  &fakeNetError{timeout: true},
			want: true,
		},
		{
			name: "network error without timeout",
			err:  &fakeNetError{},
			want: false,
		},
		{
			name: "url error",
			err:  &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: errors.New("connection refused")},
			want: true,
		},
		{
			name: "context deadline",
			err:  fmt.Errorf("answer callback: %w", context.DeadlineExceeded),
			want: true,
		},
		{
			name: "context cancelled",
			err:  context.Canceled,
			want: true,
		},
		{
			name: "plain error",
			err:  errors.New("no permission"),
			want: false,
		},
		{
			name: "unreachable is not transient",
			err:  NewUnreachableError(errors.New("Forbidden: bot was blocked by the user")),
			want: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsUnreachable(t *testing.T) {
	t.Parallel()

	blocked := NewUnreachableError(errors.New("Forbidden: bot was blocked by the user"))
	if !IsUnreachable(blocked) {
		t.Error("IsUnreachable(blocked) = false")
	}
	if !IsUnreachable(fmt.Errorf("dm user: %w", blocked)) {
		t.Error("IsUnreachable(wrapped) = false")
	}
	if IsUnreachable(errors.New("other")) {
		t.Error("IsUnreachable(other) = true")
	}
	if IsUnreachable(nil) {
		t.Error("IsUnreachable(nil) = true")
	}
}

func TestErrorsUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("root cause")

	tr := NewTransientError(cause)
	if !errors.Is(tr, cause) {
		t.Error("transient does not unwrap to cause")
	}
	un := NewUnreachableError(cause)
	if !errors.Is(un, cause) {
		t.Error("unreachable does not unwrap to cause")
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want SendResult
	}{
		{
			name: "nil delivered",
			err:  nil,
			want: Delivered,
		},
		{
			name: "blocked user",
			err:  NewUnreachableError(errors.New("Forbidden")),
			want: UserUnreachable,
		},
		{
			name: "tagged transient",
			err:  NewTransientError(errors.New("timed out")),
			want: Transient,
		},
		{
			name: "unknown error counts as transient",
			err:  errors.New("mystery"),
			want: Transient,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSendResultString(t *testing.T) {
	t.Parallel()

	if Delivered.String() != "delivered" {
		t.Errorf("Delivered = %q", Delivered.String())
	}
	if UserUnreachable.String() != "user_unreachable" {
		t.Errorf("UserUnreachable = %q", UserUnreachable.String())
	}
	if Transient.String() != "transient" {
		t.Errorf("Transient = %q", Transient.String())
	}
	if SendResult(99).String() != "unknown" {
		t.Errorf("SendResult(99) = %q", SendResult(99).String())
	}
}

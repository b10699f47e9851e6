package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("send message: %w", Blocked())
	if !IsKind(err, KindBlocked) {
		t.Fatalf("KindOf() = %q, want %q", KindOf(err), KindBlocked)
	}
	if !errors.Is(err, Blocked()) {
		t.Error("errors.Is should match on kind and code")
	}
	if errors.Is(err, NotMember()) {
		t.Error("errors.Is matched a different code")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotMember(), http.StatusForbidden},
		{Blocked(), http.StatusForbidden},
		{NotFound("message"), http.StatusNotFound},
		{Validation(CodeInvalidPayload, "bad"), http.StatusBadRequest},
		{NotGroup(), http.StatusUnprocessableEntity},
		{New(KindConflict, "DUP", "dup"), http.StatusConflict},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

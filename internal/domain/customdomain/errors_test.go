package customdomain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := NewError(CodeDomainNotFound, "Domain not found", nil)
	wrapped := fmt.Errorf("get status: %w", err)

	if !errors.Is(wrapped, ErrDomainNotFound) {
		t.Fatal("expected wrapped error to match ErrDomainNotFound")
	}
	if errors.Is(wrapped, ErrDomainAlreadyUsed) {
		t.Fatal("expected different code not to match")
	}
	if got := CodeOf(wrapped); got != CodeDomainNotFound {
		t.Fatalf("expected code %s, got %s", CodeDomainNotFound, got)
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(CodeDatabaseError, "Could not save domain", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable through Unwrap")
	}
	if !errors.Is(err, ErrDatabase) {
		t.Fatal("expected error to match ErrDatabase")
	}
	if err.Error() != "DATABASE_ERROR: Could not save domain: connection reset" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(errors.New("boom")); got != "" {
		t.Fatalf("expected empty code, got %s", got)
	}
}

package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected int
	}{
		{"not found", NotFoundError("student not found"), http.StatusNotFound},
		{"precondition", PreconditionError("target batch is full"), http.StatusBadRequest},
		{"business rule", BusinessRuleError("invalid fee action"), http.StatusBadRequest},
		{"consistency", ConsistencyError("occupancy underflow"), http.StatusInternalServerError},
		{"transaction", TransactionError("commit", errors.New("deadlock")), http.StatusInternalServerError},
		{"sentinel record not found", ErrorRecordNotFound, http.StatusNotFound},
		{"wrapped sentinel", fmt.Errorf("lookup: %w", ErrorRecordNotFound), http.StatusNotFound},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusCode(tc.err); got != tc.expected {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.expected, got)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(TransactionError("commit", errors.New("deadlock"))) {
		t.Fatalf("transaction failures must be retryable")
	}
	for _, err := range []error{
		NotFoundError("x"),
		PreconditionError("x"),
		BusinessRuleError("x"),
		ConsistencyError("x"),
		errors.New("plain"),
	} {
		if Retryable(err) {
			t.Fatalf("expected non-retryable: %v", err)
		}
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("driver: bad connection")
	err := TransactionError("begin switch transaction", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to survive errors.Is")
	}
	kind, ok := KindOf(fmt.Errorf("outer: %w", err))
	if !ok || kind != ErrorKindTransactionFailure {
		t.Fatalf("expected kind to survive wrapping, got (%v, %v)", kind, ok)
	}
}

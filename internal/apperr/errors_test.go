package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{ValidationFailed, http.StatusUnprocessableEntity},
		{DomainRuleViolation, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{ResourceBusy, http.StatusTooManyRequests},
		{TokenRevoked, http.StatusUnauthorized},
		{StorageError, http.StatusInternalServerError},
		{RequestCanceled, StatusClientClosedRequest},
		{Kind("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusCode(tt.kind); got != tt.want {
			t.Errorf("StatusCode(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("update product: %w", New(NotFound, "product not found"))
	if KindOf(err) != NotFound {
		t.Fatalf("expected not_found, got %s", KindOf(err))
	}
	if KindOf(errors.New("boom")) != InfrastructureError {
		t.Fatal("plain errors should classify as infrastructure errors")
	}
}

func TestOutward_TokenKindsShareMessage(t *testing.T) {
	for _, kind := range []Kind{InvalidToken, TokenRevoked, InvalidOrExpiredToken} {
		message, details := Outward(New(kind, "specific reason"))
		if message != GenericTokenMessage {
			t.Errorf("%s leaked message %q", kind, message)
		}
		if len(details) != 1 || details[0] != GenericTokenMessage {
			t.Errorf("%s leaked details %v", kind, details)
		}
	}
}

func TestOutward_ValidationKeepsAllMessages(t *testing.T) {
	message, details := Outward(Validation([]string{"a", "b"}))
	if message != "a" {
		t.Errorf("expected first message, got %q", message)
	}
	if len(details) != 2 {
		t.Errorf("expected 2 details, got %v", details)
	}
}

func TestOutward_HidesInfrastructureDetail(t *testing.T) {
	message, _ := Outward(Storage("query product", errors.New("connection refused")))
	if message != "internal server error" {
		t.Errorf("expected generic message, got %q", message)
	}
}

func TestCanceled_IsBusinessAndKeepsCause(t *testing.T) {
	err := Canceled(context.Canceled)
	if !IsBusiness(KindOf(err)) {
		t.Error("a caller going away must not be reported as a system error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("cause should stay reachable")
	}
}

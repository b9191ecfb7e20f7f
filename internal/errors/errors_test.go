package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestGetServiceErrorUnwrapsChains(t *testing.T) {
	base := RevokedOrMissing()
	wrapped := fmt.Errorf("submit command: %w", base)

	se := GetServiceError(wrapped)
	if se == nil {
		t.Fatal("expected a service error in the chain")
	}
	if se.Code != CodeRevokedOrMissing || se.HTTPStatus != http.StatusNotFound {
		t.Fatalf("unexpected error: %+v", se)
	}

	if GetServiceError(fmt.Errorf("plain")) != nil {
		t.Fatal("plain errors must not resolve to a service error")
	}
}

func TestIsCode(t *testing.T) {
	if !IsCode(Expired(), CodeExpired) {
		t.Fatal("expired error should match its code")
	}
	if IsCode(Expired(), CodeNotFound) {
		t.Fatal("codes must not cross-match")
	}
	if IsCode(nil, CodeExpired) {
		t.Fatal("nil never matches")
	}
}

func TestWithDetails(t *testing.T) {
	e := RateLimitExceeded(25, "1s")
	if e.Details["limit"] != 25 || e.Details["window"] != "1s" {
		t.Fatalf("details not attached: %+v", e.Details)
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	e := InvalidRequest("bad body", fmt.Errorf("unexpected EOF"))
	want := "invalid_request: bad body: unexpected EOF"
	if e.Error() != want {
		t.Fatalf("Error() = %q, want %q", e.Error(), want)
	}
}

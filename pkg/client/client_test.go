package client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stagewire/platform/internal/api/httpserver/router"
	"github.com/stagewire/platform/internal/config"
	"github.com/stagewire/platform/internal/control"
	"github.com/stagewire/platform/internal/logging"
	"github.com/stagewire/platform/internal/metrics"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	log := logging.New("client-test", "error", "json")
	mets := metrics.New()

	bus := control.NewBus(log)
	registry := control.NewRegistry(bus, log)
	gateway := control.NewGateway(registry, bus, log)

	srv := httptest.NewServer(router.New(cfg, log, mets, registry, gateway, bus))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL)
	ctx := context.Background()

	maxIntensity := 10
	sess, err := c.CreateSession(ctx, CreateSessionParams{
		OwnerID:      "performer-1",
		MaxIntensity: &maxIntensity,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if sess.ID == "" || sess.Token == "" {
		t.Fatalf("descriptor missing credentials: %+v", sess)
	}
	if sess.MaxIntensity != 10 {
		t.Fatalf("maxIntensity = %d, want 10", sess.MaxIntensity)
	}

	status, err := c.GetSession(ctx, sess.ID, "performer-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !status.Active || status.Revoked {
		t.Fatalf("fresh session should be active: %+v", status)
	}

	delivered, err := c.SubmitCommand(ctx, sess.ID, sess.Token, 15)
	if err != nil {
		t.Fatalf("submit command: %v", err)
	}
	if delivered != 10 {
		t.Fatalf("delivered = %v, want clamped 10", delivered)
	}

	if err := c.RevokeSession(ctx, sess.ID, "performer-1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	// Revoke is idempotent.
	if err := c.RevokeSession(ctx, sess.ID, "performer-1"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}

	if _, err := c.SubmitCommand(ctx, sess.ID, sess.Token, 5); err == nil {
		t.Fatal("submit after revoke should fail")
	} else if apiErr, ok := err.(*APIError); !ok || apiErr.Code != "revoked_or_missing" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClientErrorShapes(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL)
	ctx := context.Background()

	if _, err := c.CreateSession(ctx, CreateSessionParams{}); err == nil {
		t.Fatal("create without owner should fail")
	} else if apiErr, ok := err.(*APIError); !ok || apiErr.Code != "invalid_request" {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, err := c.CreateSession(ctx, CreateSessionParams{OwnerID: "performer-1"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := c.GetSession(ctx, sess.ID, "someone-else"); err == nil {
		t.Fatal("non-owner get should fail")
	} else if apiErr, ok := err.(*APIError); !ok || apiErr.Code != "forbidden" {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.RevokeSession(ctx, "no-such-session", "performer-1"); err == nil {
		t.Fatal("revoking unknown session should fail")
	} else if apiErr, ok := err.(*APIError); !ok || apiErr.Code != "not_found" {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := c.SubmitCommand(ctx, sess.ID, "wrong-token", 5); err == nil {
		t.Fatal("wrong token should fail")
	} else if apiErr, ok := err.(*APIError); !ok || apiErr.Code != "unauthorized" {
		t.Fatalf("unexpected error: %v", err)
	}
}

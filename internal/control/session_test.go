package control

import (
	"context"
	"sync"
	"testing"
	"time"

	svcerr "github.com/stagewire/platform/internal/errors"
	"github.com/stagewire/platform/pkg/testutil"
)

func intPtr(v int) *int { return &v }

// fakeClock is a mutable time source for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRegistryCreateDefaults(t *testing.T) {
	r := NewRegistry(nil, nil)

	desc, err := r.Create(context.Background(), CreateParams{OwnerID: "1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if desc.MaxIntensity != DefaultMaxIntensity {
		t.Errorf("MaxIntensity = %d, want %d", desc.MaxIntensity, DefaultMaxIntensity)
	}
	if desc.DurationSec != DefaultDurationSec {
		t.Errorf("DurationSec = %d, want %d", desc.DurationSec, DefaultDurationSec)
	}
	if desc.ID == "" || desc.Token == "" {
		t.Fatalf("id and token must be set, got id=%q token=%q", desc.ID, desc.Token)
	}
	if desc.ID == desc.Token {
		t.Error("token must not equal the session id")
	}
	if desc.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestRegistryCreateClamping(t *testing.T) {
	r := NewRegistry(nil, nil)

	tests := []struct {
		name         string
		maxIntensity *int
		durationSec  *int
		wantMax      int
		wantDuration int
	}{
		{"negative intensity", intPtr(-5), nil, 0, DefaultDurationSec},
		{"huge intensity", intPtr(100), nil, 20, DefaultDurationSec},
		{"ceiling intensity", intPtr(20), nil, 20, DefaultDurationSec},
		{"zero intensity", intPtr(0), nil, 0, DefaultDurationSec},
		{"short duration", nil, intPtr(10), DefaultMaxIntensity, 60},
		{"huge duration", nil, intPtr(999999), DefaultMaxIntensity, 3600},
		{"negative duration", nil, intPtr(-1), DefaultMaxIntensity, 60},
		{"both in range", intPtr(10), intPtr(120), 10, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := r.Create(context.Background(), CreateParams{
				OwnerID:      "owner",
				MaxIntensity: tt.maxIntensity,
				DurationSec:  tt.durationSec,
			})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if desc.MaxIntensity != tt.wantMax {
				t.Errorf("MaxIntensity = %d, want %d", desc.MaxIntensity, tt.wantMax)
			}
			if desc.DurationSec != tt.wantDuration {
				t.Errorf("DurationSec = %d, want %d", desc.DurationSec, tt.wantDuration)
			}
		})
	}
}

func TestRegistryCreateRequiresOwner(t *testing.T) {
	r := NewRegistry(nil, nil)
	if _, err := r.Create(context.Background(), CreateParams{}); !svcerr.IsCode(err, svcerr.CodeInvalidRequest) {
		t.Fatalf("expected invalid_request, got %v", err)
	}
}

func TestRegistryCreateUniqueCredentials(t *testing.T) {
	r := NewRegistry(nil, nil)

	a, err := r.Create(context.Background(), CreateParams{OwnerID: "owner"})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := r.Create(context.Background(), CreateParams{OwnerID: "owner"})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if a.ID == b.ID {
		t.Error("session ids must be unique")
	}
	if a.Token == b.Token {
		t.Error("tokens must be unique")
	}
}

func TestRegistryRevoke(t *testing.T) {
	bus := NewBus(nil)
	r := NewRegistry(bus, nil)

	desc, err := r.Create(context.Background(), CreateParams{OwnerID: "42"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	conn := testutil.NewRecorderConn()
	bus.Subscribe(conn, desc.ID)

	t.Run("unknown session", func(t *testing.T) {
		if err := r.Revoke(context.Background(), "no-such-session", "42"); !svcerr.IsCode(err, svcerr.CodeNotFound) {
			t.Fatalf("expected not_found, got %v", err)
		}
	})

	t.Run("non-owner", func(t *testing.T) {
		if err := r.Revoke(context.Background(), desc.ID, "99"); !svcerr.IsCode(err, svcerr.CodeForbidden) {
			t.Fatalf("expected forbidden, got %v", err)
		}
		if conn.Len() != 0 {
			t.Fatalf("no event should be broadcast on a failed revoke, got %d", conn.Len())
		}
	})

	t.Run("owner", func(t *testing.T) {
		if err := r.Revoke(context.Background(), desc.ID, "42"); err != nil {
			t.Fatalf("revoke: %v", err)
		}
		events := conn.Events()
		if len(events) != 1 {
			t.Fatalf("expected exactly one event, got %d", len(events))
		}
		ended, ok := events[0].(EndedEvent)
		if !ok {
			t.Fatalf("expected EndedEvent, got %T", events[0])
		}
		if ended.Type != EventTypeEnded || ended.SessionID != desc.ID {
			t.Errorf("unexpected event %+v", ended)
		}
	})

	t.Run("idempotent re-revoke rebroadcasts", func(t *testing.T) {
		if err := r.Revoke(context.Background(), desc.ID, "42"); err != nil {
			t.Fatalf("second revoke: %v", err)
		}
		if conn.Len() != 2 {
			t.Fatalf("expected a second controlEnded broadcast, got %d events", conn.Len())
		}
	})
}

func TestRegistryDescribe(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(nil, nil, WithClock(clock.Now))

	desc, err := r.Create(context.Background(), CreateParams{OwnerID: "42", DurationSec: intPtr(120)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := r.Describe(context.Background(), desc.ID, "99"); !svcerr.IsCode(err, svcerr.CodeForbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}
	if _, err := r.Describe(context.Background(), "missing", "42"); !svcerr.IsCode(err, svcerr.CodeNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}

	status, err := r.Describe(context.Background(), desc.ID, "42")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if !status.Active || status.Revoked {
		t.Errorf("fresh session should be active, got %+v", status)
	}

	clock.Advance(121 * time.Second)
	status, err = r.Describe(context.Background(), desc.ID, "42")
	if err != nil {
		t.Fatalf("describe after expiry: %v", err)
	}
	if status.Active {
		t.Error("expired session should not report active")
	}
	if status.Revoked {
		t.Error("expiry must not flip the revoked flag")
	}
}

func TestRegistrySweepDead(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(NewBus(nil), nil, WithClock(clock.Now))

	expiring, err := r.Create(context.Background(), CreateParams{OwnerID: "o", DurationSec: intPtr(60)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	revoked, err := r.Create(context.Background(), CreateParams{OwnerID: "o", DurationSec: intPtr(3600)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := r.Revoke(context.Background(), revoked.ID, "o"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	// Inside retention: everything stays reachable.
	if swept := r.SweepDead(10 * time.Minute); swept != 0 {
		t.Fatalf("swept %d records inside retention, want 0", swept)
	}

	clock.Advance(15 * time.Minute)
	fresh, err := r.Create(context.Background(), CreateParams{OwnerID: "o", DurationSec: intPtr(3600)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	swept := r.SweepDead(10 * time.Minute)
	if swept != 2 {
		t.Fatalf("swept = %d, want 2", swept)
	}
	if r.lookup(expiring.ID) != nil {
		t.Error("expired session should have been evicted")
	}
	if r.lookup(revoked.ID) != nil {
		t.Error("revoked session should have been evicted")
	}
	if r.lookup(fresh.ID) == nil {
		t.Error("live session must stay reachable")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

// Package control implements the consent-gated remote-control session core:
// a registry of performer-authorized sessions, a gateway validating bearer
// token command submissions against them, and a bus fanning accepted
// commands out to live subscriber connections.
package control

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stagewire/platform/internal/errors"
	"github.com/stagewire/platform/internal/logging"
	"github.com/stagewire/platform/internal/metrics"
)

// Bounds for session parameters. Out-of-range inputs are clamped, never
// rejected.
const (
	MinIntensity        = 0
	MaxIntensityCeiling = 20
	DefaultMaxIntensity = 12

	MinDurationSec     = 60
	MaxDurationSec     = 3600
	DefaultDurationSec = 300
)

const tokenBytes = 32

// session is the registry-owned record of one consent session. The mutex
// guards the revoked flag and serializes event publication for the session,
// so a submit that saw revoked=false publishes before any controlEnded
// broadcast, and one that would publish after it observes revoked=true.
type session struct {
	id           string
	token        string
	ownerID      string
	maxIntensity int
	durationSec  int
	createdAt    time.Time

	mu        sync.Mutex
	revoked   bool
	revokedAt time.Time
}

func (s *session) expiredAt(now time.Time) bool {
	return now.Sub(s.createdAt) > time.Duration(s.durationSec)*time.Second
}

// Descriptor is the contract returned to the creating performer. The owner id
// is retained server-side and not echoed back.
type Descriptor struct {
	ID           string    `json:"id"`
	Token        string    `json:"token"`
	MaxIntensity int       `json:"maxIntensity"`
	DurationSec  int       `json:"durationSec"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Status is the owner-visible state of a session. It never carries the token.
type Status struct {
	ID           string    `json:"id"`
	MaxIntensity int       `json:"maxIntensity"`
	DurationSec  int       `json:"durationSec"`
	CreatedAt    time.Time `json:"createdAt"`
	Revoked      bool      `json:"revoked"`
	Active       bool      `json:"active"`
}

// CreateParams are the inputs to session creation. Nil optional fields take
// the defaults.
type CreateParams struct {
	OwnerID      string
	MaxIntensity *int
	DurationSec  *int
}

// EndBroadcaster publishes the termination event for a revoked session.
// *Bus satisfies it.
type EndBroadcaster interface {
	PublishEnd(sessionID string)
}

// Registry owns all session records. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session

	ended EndBroadcaster
	log   *logging.Logger
	mets  *metrics.Metrics
	now   func() time.Time
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the registry time source, used by expiry tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithRegistryMetrics attaches collectors to the registry.
func WithRegistryMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.mets = m }
}

// NewRegistry constructs a session registry publishing termination events to
// the given broadcaster.
func NewRegistry(ended EndBroadcaster, log *logging.Logger, opts ...RegistryOption) *Registry {
	if log == nil {
		log = logging.NewDefault("control")
	}
	r := &Registry{
		sessions: make(map[string]*session),
		ended:    ended,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new consent session for the owner and returns its
// descriptor, including the bearer token. Intensity and duration inputs are
// clamped into their valid ranges.
func (r *Registry) Create(ctx context.Context, p CreateParams) (Descriptor, error) {
	if p.OwnerID == "" {
		return Descriptor{}, errors.InvalidRequest("ownerId is required", nil)
	}

	maxIntensity := DefaultMaxIntensity
	if p.MaxIntensity != nil {
		maxIntensity = clampInt(*p.MaxIntensity, MinIntensity, MaxIntensityCeiling)
	}
	durationSec := DefaultDurationSec
	if p.DurationSec != nil {
		durationSec = clampInt(*p.DurationSec, MinDurationSec, MaxDurationSec)
	}

	token, err := newToken()
	if err != nil {
		return Descriptor{}, errors.Internal("generate session token", err)
	}

	rec := &session{
		id:           uuid.NewString(),
		token:        token,
		ownerID:      p.OwnerID,
		maxIntensity: maxIntensity,
		durationSec:  durationSec,
		createdAt:    r.now().UTC(),
	}

	r.mu.Lock()
	r.sessions[rec.id] = rec
	r.mu.Unlock()

	if r.mets != nil {
		r.mets.RecordSessionCreated()
	}
	r.log.WithContext(ctx).WithField("session_id", rec.id).Debug("control session created")

	return Descriptor{
		ID:           rec.id,
		Token:        rec.token,
		MaxIntensity: rec.maxIntensity,
		DurationSec:  rec.durationSec,
		CreatedAt:    rec.createdAt,
	}, nil
}

// Revoke marks the session revoked and broadcasts the termination event.
// Only the owner may revoke. Revoking an already-revoked session succeeds
// and re-broadcasts, so callers can treat revoke as "ensure ended".
func (r *Registry) Revoke(ctx context.Context, sessionID, requesterID string) error {
	rec := r.lookup(sessionID)
	if rec == nil {
		return errors.NotFound("session not found")
	}
	if requesterID != rec.ownerID {
		return errors.Forbidden("only the session owner may revoke")
	}

	rec.mu.Lock()
	if !rec.revoked {
		rec.revoked = true
		rec.revokedAt = r.now().UTC()
	}
	if r.ended != nil {
		r.ended.PublishEnd(rec.id)
	}
	rec.mu.Unlock()

	if r.mets != nil {
		r.mets.RecordSessionRevoked()
	}
	r.log.WithContext(ctx).WithField("session_id", rec.id).Info("control session revoked")
	return nil
}

// Describe returns the owner-visible state of a session.
func (r *Registry) Describe(ctx context.Context, sessionID, requesterID string) (Status, error) {
	rec := r.lookup(sessionID)
	if rec == nil {
		return Status{}, errors.NotFound("session not found")
	}
	if requesterID != rec.ownerID {
		return Status{}, errors.Forbidden("only the session owner may inspect")
	}

	now := r.now()
	rec.mu.Lock()
	revoked := rec.revoked
	rec.mu.Unlock()

	return Status{
		ID:           rec.id,
		MaxIntensity: rec.maxIntensity,
		DurationSec:  rec.durationSec,
		CreatedAt:    rec.createdAt,
		Revoked:      revoked,
		Active:       !revoked && !rec.expiredAt(now),
	}, nil
}

// SweepDead evicts records that have been revoked or past their duration
// window for longer than the retention period, and reports how many were
// removed. Records within retention stay reachable by id.
func (r *Registry) SweepDead(retention time.Duration) int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var swept int
	for id, rec := range r.sessions {
		rec.mu.Lock()
		dead := (rec.revoked && now.Sub(rec.revokedAt) > retention) ||
			now.Sub(rec.createdAt) > time.Duration(rec.durationSec)*time.Second+retention
		rec.mu.Unlock()
		if dead {
			delete(r.sessions, id)
			swept++
		}
	}

	if swept > 0 {
		if r.mets != nil {
			r.mets.RecordSessionsSwept(swept)
		}
		r.log.WithField("count", swept).Debug("swept dead control sessions")
	}
	return swept
}

// Len reports the number of stored session records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// lookup is the internal read used by the gateway. The returned record and
// its token never leave the package.
func (r *Registry) lookup(sessionID string) *session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

// newToken returns an unguessable bearer token, generated independently of
// the session id.
func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read randomness: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ClampIntensity coerces a raw intensity to the accepted range. Non-finite
// and negative values count as zero; values above the session ceiling are
// capped at it.
func ClampIntensity(raw float64, maxIntensity int) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < 0 {
		return 0
	}
	ceiling := float64(maxIntensity)
	if raw > ceiling {
		return ceiling
	}
	return raw
}

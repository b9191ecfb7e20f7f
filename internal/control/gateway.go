package control

import (
	"context"
	"crypto/subtle"

	"github.com/stagewire/platform/internal/errors"
	"github.com/stagewire/platform/internal/logging"
	"github.com/stagewire/platform/internal/metrics"
)

// CommandPublisher fans an accepted command out to subscribers. *Bus
// satisfies it.
type CommandPublisher interface {
	PublishCommand(sessionID string, intensity float64)
}

// Gateway validates bearer-token command submissions against the registry
// and hands accepted commands to the bus. Submission is anonymous by design:
// the token is the capability, no caller identity is checked.
type Gateway struct {
	registry *Registry
	bus      CommandPublisher
	log      *logging.Logger
	mets     *metrics.Metrics
}

// GatewayOption customizes a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayMetrics attaches collectors to the gateway.
func WithGatewayMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *Gateway) { g.mets = m }
}

// NewGateway constructs a command gateway over the registry and bus.
func NewGateway(registry *Registry, bus CommandPublisher, log *logging.Logger, opts ...GatewayOption) *Gateway {
	if log == nil {
		log = logging.NewDefault("control")
	}
	g := &Gateway{registry: registry, bus: bus, log: log}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit validates and clamps a command, publishes it to current subscribers
// and returns the accepted intensity. Checks run in a fixed order: session
// present and not revoked, then token match, then expiry. A missing session
// and a revoked one are indistinguishable to the caller.
//
// The revoked check and the publish happen under the session's mutex, so no
// command is ever delivered after the session's controlEnded broadcast.
func (g *Gateway) Submit(ctx context.Context, sessionID, presentedToken string, rawIntensity float64) (float64, error) {
	rec := g.registry.lookup(sessionID)
	if rec == nil {
		return 0, g.reject(ctx, sessionID, errors.RevokedOrMissing())
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.revoked {
		return 0, g.reject(ctx, sessionID, errors.RevokedOrMissing())
	}
	if subtle.ConstantTimeCompare([]byte(presentedToken), []byte(rec.token)) != 1 {
		return 0, g.reject(ctx, sessionID, errors.Unauthorized("bearer token does not match"))
	}
	if rec.expiredAt(g.registry.now()) {
		return 0, g.reject(ctx, sessionID, errors.Expired())
	}

	intensity := ClampIntensity(rawIntensity, rec.maxIntensity)
	if g.bus != nil {
		g.bus.PublishCommand(rec.id, intensity)
	}

	if g.mets != nil {
		g.mets.RecordCommand("accepted")
	}
	return intensity, nil
}

func (g *Gateway) reject(ctx context.Context, sessionID string, err *errors.ServiceError) error {
	if g.mets != nil {
		g.mets.RecordCommand(string(err.Code))
	}
	g.log.WithContext(ctx).WithFields(map[string]interface{}{
		"session_id": sessionID,
		"reason":     string(err.Code),
	}).Debug("command rejected")
	return err
}

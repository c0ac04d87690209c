package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/httpapi"
)

// DefaultVersionConstraint is the backend API range this client supports.
const DefaultVersionConstraint = ">=1.0.0, <2.0.0"

// ErrIncompatibleBackend is returned by CheckCompatibility in strict mode.
var ErrIncompatibleBackend = errors.New("backend API version is not supported")

// Health is the body of GET /health.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Compatibility is the outcome of a version check.
type Compatibility struct {
	Version    string `json:"version"`
	Constraint string `json:"constraint"`
	Compatible bool   `json:"compatible"`
}

type compatibility struct {
	raw        string
	constraint *semver.Constraints
	strict     bool
}

func defaultCompatibility() compatibility {
	c, _ := semver.NewConstraint(DefaultVersionConstraint)
	return compatibility{raw: DefaultVersionConstraint, constraint: c}
}

// ParseVersionConstraint validates a semver range such as ">=1.2.0, <2.0.0".
func ParseVersionConstraint(s string) (*semver.Constraints, error) {
	c, err := semver.NewConstraint(s)
	if err != nil {
		return nil, fmt.Errorf("invalid version constraint %q: %w", s, err)
	}
	return c, nil
}

// WithVersionConstraint sets the supported backend range. In strict mode an
// unsupported backend is an error; otherwise it is logged. An invalid range
// keeps the default.
func WithVersionConstraint(constraint string, strict bool) Option {
	return func(g *Gateway) {
		g.compat.strict = strict
		if constraint == "" {
			return
		}
		c, err := ParseVersionConstraint(constraint)
		if err != nil {
			g.logger.Warn().Err(err).Msg("keeping default backend version constraint")
			return
		}
		g.compat.raw = constraint
		g.compat.constraint = c
	}
}

// CheckCompatibility reads the backend version from /health and checks it
// against the configured range. It needs no session.
func (g *Gateway) CheckCompatibility(ctx context.Context) (Compatibility, error) {
	const op = "gateway.CheckCompatibility"

	var h Health
	if err := g.do(ctx, op, httpapi.Request{Path: PathHealth}, &h); err != nil {
		return Compatibility{}, err
	}
	out := Compatibility{Version: h.Version, Constraint: g.compat.raw}

	v, err := semver.NewVersion(h.Version)
	if err != nil {
		return out, apierr.Wrap(apierr.KindInternal, op, fmt.Errorf("backend reported version %q: %w", h.Version, err))
	}
	out.Compatible = g.compat.constraint.Check(v)
	if out.Compatible {
		return out, nil
	}

	log := g.logger.With().
		Str("component", "gateway").
		Str("operation", op).
		Str("backend_version", h.Version).
		Str("constraint", g.compat.raw).
		Logger()
	if g.compat.strict {
		log.Error().Msg("unsupported backend version")
		return out, fmt.Errorf("%w: %s does not satisfy %s", ErrIncompatibleBackend, h.Version, g.compat.raw)
	}
	log.Warn().Msg("backend version outside the supported range")
	return out, nil
}

package utils

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"
)

// ProtocolChecker decides whether a client's protocol version is acceptable
type ProtocolChecker struct {
	server     *semver.Version
	constraint *semver.Constraints
}

// NewProtocolChecker parses the server version and an optional constraint.
// An empty constraint accepts every well-formed client version.
func NewProtocolChecker(serverVersion, constraint string) (*ProtocolChecker, error) {
	sv, err := semver.NewVersion(serverVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid server protocol version %q: %w", serverVersion, err)
	}

	pc := &ProtocolChecker{server: sv}
	if constraint != "" {
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			return nil, fmt.Errorf("invalid protocol constraint %q: %w", constraint, err)
		}
		pc.constraint = c
	}
	return pc, nil
}

// ServerVersion returns the canonical server protocol version
func (p *ProtocolChecker) ServerVersion() string {
	return p.server.String()
}

// Check validates a client version string
func (p *ProtocolChecker) Check(clientVersion string) error {
	cv, err := semver.NewVersion(clientVersion)
	if err != nil {
		log.Debug().Str("version", clientVersion).Err(err).Msg("invalid client protocol version")
		return fmt.Errorf("invalid protocol version %q", clientVersion)
	}

	if p.constraint == nil {
		return nil
	}

	if ok, errs := p.constraint.Validate(cv); !ok {
		reason := "unsupported"
		if len(errs) > 0 {
			reason = errs[0].Error()
		}
		return fmt.Errorf("protocol version %s not accepted: %s", cv.String(), reason)
	}
	return nil
}

// Package core holds cross-cutting runtime types shared by the service
// packages.
package core

// Environment selects runtime behavior that differs between a developer
// machine and a deployed instance, mainly log format and verbosity.
type Environment string

const (
	// Development is the default for local runs: console log output, debug
	// level, .env-based configuration.
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	// Production switches the logger to structured JSON at info level.
	Production Environment = "production"
)

func (e Environment) String() string {
	return string(e)
}

// IsProduction reports whether this instance runs with production settings.
func (e Environment) IsProduction() bool {
	return e == Production
}

// ParseEnvironment maps the ENVIRONMENT variable onto a known environment.
// Anything unrecognized means a local run, so it falls back to Development
// rather than refusing to start.
func ParseEnvironment(v string) Environment {
	switch Environment(v) {
	case Production:
		return Production
	case Staging:
		return Staging
	case Testing:
		return Testing
	default:
		return Development
	}
}

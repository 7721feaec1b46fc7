// Package downstream implements bounded-time calls to the backend services
// the gateway fronts: auth, feature flags, plots and reports.
package downstream

import "github.com/Resinat/Dashgate/internal/config"

// Domain names one downstream collaborator. The string value is the path
// segment used by the per-domain health route.
type Domain string

const (
	DomainAuth    Domain = "auth"
	DomainFlags   Domain = "feature-flags"
	DomainPlots   Domain = "plots"
	DomainReports Domain = "report"
)

// AllDomains lists every domain in a stable order.
func AllDomains() []Domain {
	return []Domain{DomainAuth, DomainFlags, DomainPlots, DomainReports}
}

// ParseDomain maps a path segment to a Domain.
func ParseDomain(s string) (Domain, bool) {
	switch Domain(s) {
	case DomainAuth, DomainFlags, DomainPlots, DomainReports:
		return Domain(s), true
	}
	return "", false
}

// HealthPath is the liveness path for the domain. The flag service has no
// dedicated endpoint, so its mode read doubles as the probe.
func (d Domain) HealthPath() string {
	if d == DomainFlags {
		return "/mode"
	}
	return "/health"
}

// DisplayName is the human-readable service name used in messages.
func (d Domain) DisplayName() string {
	switch d {
	case DomainAuth:
		return "auth service"
	case DomainFlags:
		return "feature-flag service"
	case DomainPlots:
		return "plot service"
	case DomainReports:
		return "report service"
	}
	return string(d) + " service"
}

// BaseURL returns the configured target for d, or "" for an unknown domain.
func BaseURL(targets config.Targets, d Domain) string {
	switch d {
	case DomainAuth:
		return targets.Auth
	case DomainFlags:
		return targets.Flags
	case DomainPlots:
		return targets.Plots
	case DomainReports:
		return targets.Reports
	}
	return ""
}

// Package review gates autonomously produced proposals behind a
// consensus audit before they reach the proposal store.
package review

import "strings"

// DefaultProtectedKeywords flags proposal content that reaches outside
// the permitted zones: credentials, destructive operations, and
// infrastructure mutations.
var DefaultProtectedKeywords = []string{
	"password",
	"secret",
	"credential",
	"private key",
	"api key",
	"rm -rf",
	"drop table",
	"force push",
	"sudo",
	"chmod 777",
	"/etc/",
	"~/.ssh",
}

// ZonePolicy is the protected-resource half of the consensus check:
// purely mechanical, applied before any reasoning call.
type ZonePolicy struct {
	// PermittedZones are path prefixes the proposal may reference
	// freely. Empty means no path restriction.
	PermittedZones []string
	// ProtectedKeywords mark content as sensitive regardless of zone.
	ProtectedKeywords []string
}

// DefaultZonePolicy returns the policy used when none is configured.
func DefaultZonePolicy() *ZonePolicy {
	return &ZonePolicy{
		ProtectedKeywords: DefaultProtectedKeywords,
	}
}

// Violations returns the protected keywords found in the content.
func (p *ZonePolicy) Violations(content string) []string {
	lower := strings.ToLower(content)

	var hits []string
	for _, kw := range p.ProtectedKeywords {
		if strings.Contains(lower, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

// Confined reports whether the content stays inside permitted zones.
func (p *ZonePolicy) Confined(content string) bool {
	return len(p.Violations(content)) == 0
}

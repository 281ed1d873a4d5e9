package domain

import (
	"fmt"
	"strings"
)

// IsModerator maps a source affiliation to the destination moderator flag.
// Owners and admins become moderators; every other tier does not.
func IsModerator(a Affiliation) bool {
	switch Affiliation(strings.ToLower(strings.TrimSpace(string(a)))) {
	case AffiliationOwner, AffiliationAdmin:
		return true
	default:
		return false
	}
}

// ParsePolicy validates a duplicate-room policy name
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicySkip, "s":
		return PolicySkip, nil
	case PolicyMigrateAnyway, "m", "migrate-anyway":
		return PolicyMigrateAnyway, nil
	case PolicyAskInteractive, "":
		return PolicyAskInteractive, nil
	default:
		return "", fmt.Errorf("invalid duplicate policy %q: must be one of: ask, skip, migrate", s)
	}
}

// SubstituteDomain replaces the "@sourceDomain" suffix of identity with "@destDomain".
// The identity is returned unchanged if either domain is empty, the two are equal,
// or identity's domain is not exactly sourceDomain.
func SubstituteDomain(identity, sourceDomain, destDomain string) string {
	if sourceDomain == "" || destDomain == "" || sourceDomain == destDomain {
		return identity
	}
	local, ok := strings.CutSuffix(identity, "@"+sourceDomain)
	if !ok {
		return identity
	}
	return local + "@" + destDomain
}

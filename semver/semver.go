// Package semver wraps Masterminds/semver/v3 with the permissive,
// warning-not-erroring behavior npm clients expect: unparseable versions
// return nil instead of an error, and unparseable ranges degrade to
// ">= 0.0.0" rather than blocking an install.
package semver

import (
	"regexp"
	"strings"

	mmsemver "github.com/Masterminds/semver/v3"
)

// Version is an immutable, comparable semantic version.
type Version struct {
	v *mmsemver.Version
}

// Parse accepts an optional leading "v" or "=" and returns nil, not an
// error, when the string cannot be parsed as a version.
func Parse(s string) *Version {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "=")
	v, err := mmsemver.NewVersion(s)
	if err != nil {
		return nil
	}
	return &Version{v: v}
}

// String renders the version in canonical major.minor.patch[-prerelease] form.
func (v *Version) String() string {
	if v == nil || v.v == nil {
		return ""
	}
	return v.v.String()
}

// IsPrerelease reports whether the version carries a prerelease identifier.
func (v *Version) IsPrerelease() bool {
	return v != nil && v.v != nil && v.v.Prerelease() != ""
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func Compare(a, b *Version) int {
	if a == nil || b == nil || a.v == nil || b.v == nil {
		return 0
	}
	return a.v.Compare(b.v)
}

// permissiveRange is the degraded range used whenever a constraint string
// does not parse, or is one of the tag forms ("", "*", "x", "latest") that
// are equivalent to "accept anything".
const permissiveRange = ">= 0.0.0"

func isWildcardRange(r string) bool {
	switch strings.TrimSpace(r) {
	case "", "*", "x", "X", "latest":
		return true
	}
	return false
}

// Satisfies reports whether version satisfies the given npm-style range
// string. An unparseable version never satisfies anything; an unparseable
// range degrades to permissive (always true) rather than failing the call.
func Satisfies(version *Version, rangeStr string) bool {
	if version == nil || version.v == nil {
		return false
	}
	if isWildcardRange(rangeStr) {
		return true
	}
	c, err := mmsemver.NewConstraint(rangeStr)
	if err != nil {
		c, err = mmsemver.NewConstraint(permissiveRange)
		if err != nil {
			return true
		}
	}
	ok, _ := c.Validate(version.v)
	return ok
}

// versionToken matches a dotted major.minor.patch literal with an
// optional prerelease suffix, the same shape a comparator or hyphen-range
// endpoint takes within a range string. Matching this shape rather than
// a bare "-" means the hyphen *operator* in "1.0.0 - 2.0.0" (surrounded
// by spaces, not part of any digit run) is never mistaken for a
// prerelease identifier.
var versionToken = regexp.MustCompile(`\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?`)

// rangeMentionsPrerelease reports whether any version literal embedded in
// rangeStr itself carries a prerelease identifier, by parsing each
// embedded version token rather than substring-matching the raw range.
func rangeMentionsPrerelease(rangeStr string) bool {
	for _, tok := range versionToken.FindAllString(rangeStr, -1) {
		if v := Parse(tok); v != nil && v.IsPrerelease() {
			return true
		}
	}
	return false
}

// MaxSatisfying returns the highest version in versions that satisfies
// rangeStr, excluding prereleases unless rangeStr itself names one. It
// returns nil if no version qualifies.
func MaxSatisfying(versions []*Version, rangeStr string) *Version {
	rangeHasPrerelease := rangeMentionsPrerelease(rangeStr)

	var best *Version
	for _, v := range versions {
		if v == nil || v.v == nil {
			continue
		}
		if v.IsPrerelease() && !rangeHasPrerelease {
			continue
		}
		if !Satisfies(v, rangeStr) {
			continue
		}
		if best == nil || Compare(v, best) > 0 {
			best = v
		}
	}
	return best
}

// ResolveTag resolves an npm dist-tag or range string against a packument's
// dist-tags map, returning the range string to actually parse. Tags that
// are not present in distTags are passed through unchanged so they fall
// into the normal range-parsing (and permissive-degrade) path.
func ResolveTag(rangeOrTag string, distTags map[string]string) string {
	trimmed := strings.TrimSpace(rangeOrTag)
	if trimmed == "" {
		return trimmed
	}
	if resolved, ok := distTags[trimmed]; ok {
		return resolved
	}
	return rangeOrTag
}

package registry

import (
	"fmt"
	"net/url"

	"github.com/wippyai/script-modules/errors"
)

// Specifiers are URLs. A module's identity is its full URL including
// query and fragment; resolution keys strip both so that
// "file:///a.js?x=1" and "file:///a.js#frag" name the same underlying
// module while remaining distinct cache entries at the engine layer.

// ParseSpecifier parses an absolute URL specifier. Bare names and
// relative paths are rejected; resolve those against a referrer with
// ResolveSpecifier first.
func ParseSpecifier(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, errors.InvalidSpecifier(s, err)
	}
	if !u.IsAbs() {
		return nil, errors.InvalidSpecifier(s, fmt.Errorf("specifier is not an absolute URL"))
	}
	return u, nil
}

// MustParseSpecifier is like ParseSpecifier but panics on error. Use it
// for specifiers known valid at compile time.
func MustParseSpecifier(s string) *url.URL {
	u, err := ParseSpecifier(s)
	if err != nil {
		panic(err)
	}
	return u
}

// ResolveSpecifier resolves s against base. When base is nil, s must be
// an absolute URL. Dot segments are removed during resolution.
func ResolveSpecifier(base *url.URL, s string) (*url.URL, error) {
	if base == nil {
		return ParseSpecifier(s)
	}
	u, err := base.Parse(s)
	if err != nil {
		return nil, errors.InvalidSpecifier(s, err)
	}
	if !u.IsAbs() {
		return nil, errors.InvalidSpecifier(s, fmt.Errorf("resolution against %q did not produce an absolute URL", base))
	}
	return u, nil
}

// CanonicalKey returns the resolution key for a URL: the href with
// query and fragment stripped.
func CanonicalKey(u *url.URL) string {
	if u.RawQuery == "" && !u.ForceQuery && u.Fragment == "" {
		return u.String()
	}
	c := *u
	c.RawQuery = ""
	c.ForceQuery = false
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// Href returns the full identity string of a specifier, query and
// fragment included.
func Href(u *url.URL) string {
	return u.String()
}

// CanonicalURL returns a copy of u with query and fragment stripped.
func CanonicalURL(u *url.URL) *url.URL {
	c := *u
	c.RawQuery = ""
	c.ForceQuery = false
	c.Fragment = ""
	c.RawFragment = ""
	return &c
}

// DefaultBundleBase returns the base URL application bundle specifiers
// resolve against when none is configured.
func DefaultBundleBase() *url.URL {
	return &url.URL{Scheme: "file", Path: "/"}
}

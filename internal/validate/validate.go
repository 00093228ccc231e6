// Package validate holds the syntax checks applied to identifiers before
// they are looked up. Checks are pure: no DNS, no network.
package validate

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// ErrInvalidFormat is wrapped by every rejection.
var ErrInvalidFormat = errors.New("invalid identifier format")

// Lookup kinds
const (
	KindIP  = "ip"
	KindURL = "url"
)

// Validator checks the syntax of one identifier.
type Validator interface {
	Validate(identifier string) error
}

// ForKind returns the validator for a lookup kind.
func ForKind(kind string) (Validator, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindIP:
		return IPValidator{}, nil
	case KindURL:
		return URLValidator{}, nil
	default:
		return nil, fmt.Errorf("unknown lookup kind %q", kind)
	}
}

// IPValidator accepts IPv6 or IPv4 address literals.
type IPValidator struct{}

func (IPValidator) Validate(identifier string) error {
	if !isIPLiteral(identifier) {
		return fmt.Errorf("%w: %q is not an IP address", ErrInvalidFormat, identifier)
	}
	return nil
}

// URLValidator accepts URLs and bare host names, but not IP literals; those
// go through IPValidator.
type URLValidator struct{}

func (URLValidator) Validate(identifier string) error {
	s := strings.TrimSpace(identifier)
	if s == "" || s != identifier || strings.ContainsAny(s, " \t\r\n") {
		return fmt.Errorf("%w: %q is not a URL", ErrInvalidFormat, identifier)
	}
	if isIPLiteral(strings.Trim(s, "[]")) {
		return fmt.Errorf("%w: %q is an IP address, not a URL", ErrInvalidFormat, identifier)
	}

	raw := s
	schemeless := !strings.Contains(s, "://")
	if schemeless {
		raw = "http://" + s
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidFormat, identifier, err)
	}
	// "mailto:x@y.com" would otherwise parse as userinfo plus host.
	if schemeless && u.User != nil {
		return fmt.Errorf("%w: %q is not a URL", ErrInvalidFormat, identifier)
	}
	if u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return fmt.Errorf("%w: %q has no scheme or host", ErrInvalidFormat, identifier)
	}
	host := u.Hostname()
	if isIPLiteral(host) {
		return fmt.Errorf("%w: %q points at an IP address", ErrInvalidFormat, identifier)
	}
	if !isHostname(host) {
		return fmt.Errorf("%w: %q has an invalid host %q", ErrInvalidFormat, identifier, host)
	}
	if p := u.Port(); p != "" && !isPort(p) {
		return fmt.Errorf("%w: %q has an invalid port", ErrInvalidFormat, identifier)
	}
	return nil
}

func isIPLiteral(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Zone() == ""
}

// isHostname reports whether h is a dotted DNS name with an alphabetic TLD.
// "localhost" is allowed as the one dotless name.
func isHostname(h string) bool {
	h = strings.TrimSuffix(strings.ToLower(h), ".")
	if h == "localhost" {
		return true
	}
	if len(h) == 0 || len(h) > 253 {
		return false
	}
	labels := strings.Split(h, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if !isLabel(l) {
			return false
		}
	}
	tld := labels[len(labels)-1]
	if strings.HasPrefix(tld, "xn--") {
		return true
	}
	for _, r := range tld {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return len(tld) >= 2
}

func isLabel(l string) bool {
	if len(l) == 0 || len(l) > 63 {
		return false
	}
	if l[0] == '-' || l[len(l)-1] == '-' {
		return false
	}
	for _, r := range l {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func isPort(p string) bool {
	if len(p) > 5 {
		return false
	}
	n := 0
	for _, r := range p {
		if r < '0' || r > '9' {
			return false
		}
		n = n*10 + int(r-'0')
	}
	return n > 0 && n <= 65535
}

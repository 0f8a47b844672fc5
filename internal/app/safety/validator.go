// Package safety validates destination URLs before a link may be created.
// It blocks private and loopback addresses, disallowed schemes, and
// blocklisted domains so the service cannot be used to mask internal targets.
package safety

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// MaxDestinationLength is the longest accepted destination URL.
const MaxDestinationLength = 2048

var (
	ErrEmptyDestination   = errors.New("destination is required")
	ErrDestinationTooLong = errors.New("destination too long")
	ErrSchemeNotAllowed   = errors.New("only http and https destinations are allowed")
	ErrCredentialsInURL   = errors.New("destinations with embedded credentials are not allowed")
	ErrHostMissing        = errors.New("destination has no host")
	ErrDomainBlocked      = errors.New("destination domain is not allowed")
	ErrPrivateAddress     = errors.New("destinations pointing to private or local addresses are not allowed")
)

// defaultBlockedDomains are always refused, along with their subdomains.
var defaultBlockedDomains = []string{
	"localhost",
	"localhost.localdomain",
	"local",
}

// Validator checks destination URLs against the safety policy.
type Validator struct {
	blocked map[string]struct{}
}

// NewValidator builds a Validator with the default blocklist plus any extra
// domains from configuration.
func NewValidator(extraBlocked []string) *Validator {
	blocked := make(map[string]struct{}, len(defaultBlockedDomains)+len(extraBlocked))
	for _, d := range defaultBlockedDomains {
		blocked[strings.ToLower(d)] = struct{}{}
	}
	for _, d := range extraBlocked {
		blocked[strings.ToLower(d)] = struct{}{}
	}
	return &Validator{blocked: blocked}
}

// Validate returns nil when the destination is safe to link to.
func (v *Validator) Validate(destination string) error {
	if strings.TrimSpace(destination) == "" {
		return ErrEmptyDestination
	}
	if len(destination) > MaxDestinationLength {
		return fmt.Errorf("%w (max %d characters)", ErrDestinationTooLong, MaxDestinationLength)
	}

	parsed, err := url.Parse(destination)
	if err != nil {
		return fmt.Errorf("invalid destination: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrSchemeNotAllowed
	}
	if parsed.User != nil {
		return ErrCredentialsInURL
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return ErrHostMissing
	}

	if v.domainBlocked(host) {
		return ErrDomainBlocked
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isPrivateAddr(addr) {
			return ErrPrivateAddress
		}
	}

	return nil
}

func (v *Validator) domainBlocked(host string) bool {
	if _, ok := v.blocked[host]; ok {
		return true
	}
	for domain := range v.blocked {
		if strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func isPrivateAddr(addr netip.Addr) bool {
	return addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}

// Package security guards outbound template fetches against server side
// request forgery.
package security

import (
	"net/netip"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	common "github.com/example/messenger/internal/adapters/common"
)

// DefaultTimeout bounds a remote template fetch.
const DefaultTimeout = 5 * time.Second

var blockedHosts = []string{"localhost", "0.0.0.0", "metadata.google.internal", "169.254.169.254"}

// Options configures ValidateURL. A nil AllowedProtocols or AllowedPorts
// selects the default list; a non-nil empty list disables that check. An
// empty AllowedHosts permits any host. Private addresses and metadata hosts
// are blocked unless AllowPrivateIPs is set, so partial options stay safe.
type Options struct {
	AllowedProtocols []string
	AllowedHosts     []string
	AllowedPorts     []int
	AllowPrivateIPs  bool
	Timeout          time.Duration
}

// DefaultOptions allows https on port 443 to any public host.
func DefaultOptions() Options {
	return Options{
		AllowedProtocols: []string{"https"},
		AllowedPorts:     []int{443},
		Timeout:          DefaultTimeout,
	}
}

// WithDefaults fills unset fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.AllowedProtocols == nil {
		o.AllowedProtocols = def.AllowedProtocols
	}
	if o.AllowedPorts == nil {
		o.AllowedPorts = def.AllowedPorts
	}
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	return o
}

// ValidateURL parses raw and applies the protocol, host, port and private
// address rules in that order. Every failure is a configuration error.
func ValidateURL(raw string, opts Options) (*url.URL, error) {
	opts = opts.WithDefaults()
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" || u.Hostname() == "" {
		return nil, common.NewConfiguration("Invalid URL format: %s", raw)
	}

	protocol := strings.ToLower(u.Scheme)
	if len(opts.AllowedProtocols) > 0 && !slices.Contains(opts.AllowedProtocols, protocol) {
		return nil, common.NewConfiguration("Protocol %q not allowed. Allowed protocols: %s",
			protocol, strings.Join(opts.AllowedProtocols, ", "))
	}

	hostname := u.Hostname()
	if len(opts.AllowedHosts) > 0 && !slices.Contains(opts.AllowedHosts, hostname) {
		return nil, common.NewConfiguration("Host %q not allowed. Allowed hosts: %s",
			hostname, strings.Join(opts.AllowedHosts, ", "))
	}

	port, err := portOf(u)
	if err != nil {
		return nil, common.NewConfiguration("Invalid URL format: %s", raw)
	}
	if len(opts.AllowedPorts) > 0 && !slices.Contains(opts.AllowedPorts, port) {
		ports := make([]string, len(opts.AllowedPorts))
		for i, p := range opts.AllowedPorts {
			ports[i] = strconv.Itoa(p)
		}
		return nil, common.NewConfiguration("Port %d not allowed. Allowed ports: %s", port, strings.Join(ports, ", "))
	}

	if !opts.AllowPrivateIPs {
		if addr, err := netip.ParseAddr(hostname); err == nil && isPrivate(addr) {
			return nil, common.NewConfiguration("Private IP addresses are not allowed: %s", hostname)
		}
		if slices.Contains(blockedHosts, strings.ToLower(hostname)) {
			return nil, common.NewConfiguration("Blocked host: %s", hostname)
		}
	}

	return u, nil
}

func portOf(u *url.URL) (int, error) {
	if p := u.Port(); p != "" {
		return strconv.Atoi(p)
	}
	if strings.EqualFold(u.Scheme, "https") {
		return 443, nil
	}
	return 80, nil
}

func isPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast()
}

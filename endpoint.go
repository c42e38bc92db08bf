package zplbox

import (
	"net"
	"strconv"
	"strings"
)

// DefaultPrinterPort is the raw printing port most label printers listen on.
const DefaultPrinterPort = 9100

// Endpoint is the network address of a label printer.
type Endpoint struct {
	Host string
	Port int
}

// String returns the endpoint in host:port form.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint parses "host:port", "host", "[v6]:port" or a bare IPv6
// address. A missing port defaults to [DefaultPrinterPort]. A leading
// "tcp://" is accepted.
func ParseEndpoint(s string) (Endpoint, error) {
	return ParseEndpointDefault(s, DefaultPrinterPort)
}

// ParseEndpointDefault is like [ParseEndpoint] but fills in defaultPort when
// s has none.
func ParseEndpointDefault(s string, defaultPort int) (Endpoint, error) {
	addr := strings.TrimPrefix(strings.TrimSpace(s), "tcp://")
	addr = strings.TrimSuffix(addr, "/")
	if addr == "" {
		return Endpoint{}, NewError(KindInvalidInput, "printer address is empty")
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port: a plain host name, IPv4 address, [v6] or bare v6 address.
		host = strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
		if strings.ContainsAny(host, "[]") || (strings.Contains(host, ":") && net.ParseIP(host) == nil) {
			return Endpoint{}, WrapError(KindInvalidInput, err, "invalid printer address %q", s)
		}
		return Endpoint{Host: host, Port: defaultPort}, nil
	}
	if host == "" {
		return Endpoint{}, NewError(KindInvalidInput, "printer address %q has no host", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, NewError(KindInvalidInput, "invalid printer port %q", portStr)
	}
	return Endpoint{Host: host, Port: port}, nil
}

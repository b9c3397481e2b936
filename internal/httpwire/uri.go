// Package httpwire handles URI splitting and HTTP request/response
// framing. Header and chunked-body framing and the Location header are
// handled with net/http and net/url; Content-Disposition parsing reuses
// vfaronov/httpheader.
package httpwire

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/relaypull/fetchd/internal/fslog"
)

// ParsedURI is the split form of a downloadable URI — host/port are
// already resolved out of the authority component, and RequestTarget
// is everything that goes on the wire after "GET ".
type ParsedURI struct {
	Scheme        string
	Host          string
	Port          int
	RequestTarget string
}

// ParseURI validates scheme and splits host/port/request-target. Only
// http and https are accepted; TLS is not implemented, so an https
// target still dials port 443 in the clear rather than refusing
// outright.
//
// RequestTarget intentionally includes the fragment when present,
// appended verbatim to the request line. That's not RFC-conformant,
// but some servers key routing off it and stripping it silently
// breaks those.
func ParseURI(raw string) (ParsedURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ParsedURI{}, fmt.Errorf("httpwire: invalid uri: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ParsedURI{}, fmt.Errorf("httpwire: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return ParsedURI{}, fmt.Errorf("httpwire: missing host")
	}

	host := u.Hostname()
	port := defaultPort(u.Scheme)
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return ParsedURI{}, fmt.Errorf("httpwire: invalid port: %w", err)
		}
		port = n
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	target := path
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		fslog.Debug("httpwire: %q carries a fragment, appending it to the request target verbatim", raw)
		target += "#" + u.EscapedFragment()
	}

	return ParsedURI{Scheme: u.Scheme, Host: host, Port: port, RequestTarget: target}, nil
}

func defaultPort(scheme string) int {
	if scheme == "https" {
		return 443
	}
	return 80
}

// ResolveRedirect resolves a Location header value against the
// request URI it was returned for, producing an absolute URI string.
func ResolveRedirect(requestURI, location string) (string, error) {
	base, err := url.Parse(requestURI)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

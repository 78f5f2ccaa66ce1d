// Package httpaio implements a minimal HTTP client and server atop tcp,
// using Content-Length framing only. See spec.md §4.8 and §6's wire-format
// and URI grammar, DESIGN.md's "httpaio" entry.
//
// Grounded on original_source/src/aio/http.rs (client buffer/header parse)
// and original_source/src/aio/http_server.rs (request-line parse and fixed
// response framing); the URI grammar is written fresh per spec.md §6 since
// original_source/src/aio/uhttp_uri.rs is out of scope for this port.
package httpaio

import (
	"fmt"
	"strconv"
	"strings"
)

// URI is a parsed "scheme://authority[/resource]" reference, per spec.md
// §6's URI grammar.
type URI struct {
	Scheme   string
	Host     string
	Port     int
	Path     string
	Query    string
	Fragment string
}

// ParseURI parses raw into a URI, applying default ports 80 (http) and 443
// (https). It returns an error on a missing scheme, missing authority,
// non-numeric port, or an unrecognized scheme.
func ParseURI(raw string) (URI, error) {
	var u URI

	schemeSep := strings.Index(raw, "://")
	if schemeSep < 0 {
		return u, fmt.Errorf("httpaio: missing scheme in %q", raw)
	}
	scheme := raw[:schemeSep]
	rest := raw[schemeSep+3:]

	var defaultPort int
	switch scheme {
	case "http":
		defaultPort = 80
	case "https":
		defaultPort = 443
	default:
		return u, fmt.Errorf("httpaio: unknown scheme %q", scheme)
	}
	u.Scheme = scheme

	authority := rest
	resource := ""
	if slash := strings.IndexByte(rest, '/'); slash >= 0 {
		authority = rest[:slash]
		resource = rest[slash:]
	}
	if authority == "" {
		return u, fmt.Errorf("httpaio: missing authority in %q", raw)
	}

	host := authority
	port := defaultPort
	if colon := strings.LastIndexByte(authority, ':'); colon >= 0 {
		host = authority[:colon]
		portStr := authority[colon+1:]
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return u, fmt.Errorf("httpaio: non-numeric port %q in %q", portStr, raw)
		}
		port = p
	}
	u.Host = host
	u.Port = port

	if resource == "" {
		u.Path = "/"
		return u, nil
	}

	if frag := strings.IndexByte(resource, '#'); frag >= 0 {
		u.Fragment = resource[frag+1:]
		resource = resource[:frag]
	}
	if q := strings.IndexByte(resource, '?'); q >= 0 {
		u.Query = resource[q+1:]
		resource = resource[:q]
	}
	if resource == "" {
		resource = "/"
	}
	u.Path = resource
	return u, nil
}

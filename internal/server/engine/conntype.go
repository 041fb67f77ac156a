package engine

import (
	"net/http"
	"strings"
)

// ConnectionType decides what happens to a connection after a response.
type ConnectionType int

const (
	// ConnUnset lets the request version decide.
	ConnUnset ConnectionType = iota
	ConnKeepAlive
	ConnUpgrade
	// ConnForceClose is an explicit close set by the application.
	ConnForceClose
	// ConnClose is the resolved close outcome when nothing was forced.
	ConnClose
)

func (t ConnectionType) String() string {
	switch t {
	case ConnKeepAlive:
		return "keep-alive"
	case ConnUpgrade:
		return "upgrade"
	case ConnForceClose:
		return "force-close"
	case ConnClose:
		return "close"
	}
	return "unset"
}

// ResolveConnectionType applies the resolution rule for one response. An
// explicit type always wins. Otherwise HTTP/1.1 and HTTP/2.0 default to
// keep-alive and HTTP/1.0 to close, refined by the request's own
// Connection header.
func ResolveConnectionType(explicit ConnectionType, major, minor int, reqHeader http.Header) ConnectionType {
	switch explicit {
	case ConnKeepAlive, ConnUpgrade, ConnForceClose:
		return explicit
	}

	modern := major == 2 || (major == 1 && minor >= 1)
	switch {
	case modern && headerHasToken(reqHeader, "Connection", "close"):
		return ConnClose
	case modern:
		return ConnKeepAlive
	case major == 1 && minor == 0 && headerHasToken(reqHeader, "Connection", "keep-alive"):
		return ConnKeepAlive
	}
	return ConnClose
}

// applyPolicy turns keep-alive into close when the server policy or an
// ongoing shutdown does not allow reuse.
func applyPolicy(t ConnectionType, policy KeepAlivePolicy, stopping bool) ConnectionType {
	if t == ConnKeepAlive && (!policy.Enabled() || stopping) {
		return ConnClose
	}
	return t
}

// explicitFromHeader maps a Connection header set by the application to an
// explicit connection type.
func explicitFromHeader(h http.Header) ConnectionType {
	switch {
	case headerHasToken(h, "Connection", "close"):
		return ConnForceClose
	case headerHasToken(h, "Connection", "upgrade"):
		return ConnUpgrade
	case headerHasToken(h, "Connection", "keep-alive"):
		return ConnKeepAlive
	}
	return ConnUnset
}

func headerHasToken(h http.Header, key, token string) bool {
	for _, v := range h.Values(key) {
		for _, t := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(t), token) {
				return true
			}
		}
	}
	return false
}

// SetConnectionType sets an explicit connection type on a response created
// by the engine. It reports false when w did not come from the engine (for
// example an HTTP/2 stream) or the headers were already sent.
func SetConnectionType(w http.ResponseWriter, t ConnectionType) bool {
	res := unwrapResponse(w)
	if res == nil || res.headerSent {
		return false
	}
	res.explicit = t
	return true
}

func unwrapResponse(w http.ResponseWriter) *response {
	for w != nil {
		if r, ok := w.(*response); ok {
			return r
		}
		u, ok := w.(interface{ Unwrap() http.ResponseWriter })
		if !ok {
			return nil
		}
		w = u.Unwrap()
	}
	return nil
}

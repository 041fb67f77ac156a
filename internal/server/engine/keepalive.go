package engine

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// KeepAliveMode selects how idle connections are kept between requests.
type KeepAliveMode int

const (
	// ModeDisabled closes every connection after its first response.
	ModeDisabled KeepAliveMode = iota + 1
	// ModeTimeout closes a connection idle for longer than the interval.
	ModeTimeout
	// ModeTCPProbe leaves idle detection to OS keep-alive probes.
	ModeTCPProbe
)

// DefaultKeepAlive is used when Config.KeepAlive is the zero value.
var DefaultKeepAlive = KeepAliveTimeout(5 * time.Second)

// KeepAlivePolicy is one of Disabled, Timeout(n) or TCPProbe(n). The zero
// value means "use the default".
type KeepAlivePolicy struct {
	Mode     KeepAliveMode
	Interval time.Duration
}

// KeepAliveDisabled returns the Disabled policy.
func KeepAliveDisabled() KeepAlivePolicy {
	return KeepAlivePolicy{Mode: ModeDisabled}
}

// KeepAliveTimeout returns the Timeout(d) policy.
func KeepAliveTimeout(d time.Duration) KeepAlivePolicy {
	return KeepAlivePolicy{Mode: ModeTimeout, Interval: d}
}

// KeepAliveTCPProbe returns the TCPProbe(d) policy.
func KeepAliveTCPProbe(d time.Duration) KeepAlivePolicy {
	return KeepAlivePolicy{Mode: ModeTCPProbe, Interval: d}
}

// ParseKeepAlive accepts "disabled", "timeout:5s", "tcp_probe:30s" or a
// bare duration, which means timeout.
func ParseKeepAlive(s string) (KeepAlivePolicy, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "disabled", "off", "none":
		return KeepAliveDisabled(), nil
	}

	mode, arg, found := strings.Cut(s, ":")
	if !found {
		mode, arg = "timeout", s
	}
	d, err := time.ParseDuration(arg)
	if err != nil {
		return KeepAlivePolicy{}, fmt.Errorf("keep-alive %q: %w", s, err)
	}

	var p KeepAlivePolicy
	switch mode {
	case "timeout":
		p = KeepAliveTimeout(d)
	case "tcp_probe", "tcp-probe", "os":
		p = KeepAliveTCPProbe(d)
	default:
		return KeepAlivePolicy{}, fmt.Errorf("keep-alive %q: unknown mode %q", s, mode)
	}
	return p, p.Validate()
}

// Validate checks the interval of timed policies.
func (p KeepAlivePolicy) Validate() error {
	switch p.Mode {
	case ModeDisabled:
		return nil
	case ModeTimeout, ModeTCPProbe:
		if p.Interval <= 0 {
			return fmt.Errorf("keep-alive %s: interval must be positive", p)
		}
		return nil
	}
	return fmt.Errorf("keep-alive: unknown mode %d", p.Mode)
}

func (p KeepAlivePolicy) String() string {
	switch p.Mode {
	case ModeDisabled:
		return "disabled"
	case ModeTimeout:
		return "timeout:" + p.Interval.String()
	case ModeTCPProbe:
		return "tcp_probe:" + p.Interval.String()
	}
	return "default"
}

// Enabled reports whether connections may outlive their first response.
func (p KeepAlivePolicy) Enabled() bool {
	return p.Mode == ModeTimeout || p.Mode == ModeTCPProbe
}

// idleDeadline is the read deadline for KeepAliveWait starting at now. A
// zero time means no software deadline.
func (p KeepAlivePolicy) idleDeadline(now time.Time) time.Time {
	if p.Mode == ModeTimeout {
		return now.Add(p.Interval)
	}
	return time.Time{}
}

// applyTCP configures OS keep-alive probes on an accepted TCP socket.
// Listeners are opened with probes off, so only TCPProbe turns them on.
func (p KeepAlivePolicy) applyTCP(c net.Conn) error {
	if p.Mode != ModeTCPProbe {
		return nil
	}
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return nil
	}
	return tc.SetKeepAliveConfig(net.KeepAliveConfig{
		Enable:   true,
		Idle:     p.Interval,
		Interval: p.Interval,
		Count:    -1,
	})
}

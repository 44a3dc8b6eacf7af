// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"regexp"
	"strings"
)

// UnknownIP is recorded when the client address cannot be determined.
const UnknownIP = "unknown"

var descriptorIP = regexp.MustCompile(`\(([^)]+)\)$`)

// DeviceInfo describes the client a session was issued to.
type DeviceInfo struct {
	UserAgent string
	IPAddress string
}

// NewDeviceInfo builds a DeviceInfo from a raw user agent and a raw address,
// which may be an X-Forwarded-For list.
func NewDeviceInfo(userAgent, rawIP string) DeviceInfo {
	return DeviceInfo{
		UserAgent: strings.TrimSpace(userAgent),
		IPAddress: NormalizeIP(rawIP),
	}
}

// Describe renders the device descriptor stored with a refresh token:
// "<user agent> (<ip>)", or just the ip when no user agent was sent.
func (d DeviceInfo) Describe() string {
	ip := d.IPAddress
	if ip == "" {
		ip = UnknownIP
	}
	if d.UserAgent == "" {
		return ip
	}
	return d.UserAgent + " (" + ip + ")"
}

// NormalizeIP reduces a client address to a single printable IP. It keeps the
// first entry of a forwarded list, maps IPv6 loopback to 127.0.0.1 and strips
// the IPv4-mapped IPv6 prefix.
func NormalizeIP(raw string) string {
	first := strings.TrimSpace(strings.Split(raw, ",")[0])
	switch {
	case first == "":
		return UnknownIP
	case first == "::1":
		return "127.0.0.1"
	case strings.HasPrefix(first, "::ffff:"):
		return strings.TrimPrefix(first, "::ffff:")
	default:
		return first
	}
}

// IPFromDescriptor recovers the ip from a descriptor produced by Describe.
// Returns UnknownIP when the descriptor carries no trailing "(ip)".
func IPFromDescriptor(descriptor string) string {
	m := descriptorIP.FindStringSubmatch(descriptor)
	if m == nil {
		return UnknownIP
	}
	return m[1]
}

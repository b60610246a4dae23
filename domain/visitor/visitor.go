// Package visitor derives a stable visitor identity and coarse device,
// browser, and network attributes from raw request headers.
// All functions are pure and safe for concurrent per-request use.
package visitor

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"
	"time"
)

// Device classifications. Unresolvable user agents default to desktop.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// UnknownBrowser is reported when no user agent is present or none of the
// known engines match.
const UnknownBrowser = "Unknown"

// LoopbackIP is the sentinel used when no client address can be determined.
const LoopbackIP = "127.0.0.1"

// Info holds the resolved attributes for one request.
type Info struct {
	UserAgent string
	IPAddress string
	Country   string
	City      string
	Device    string
	Browser   string
}

// Resolve builds an Info from the relevant header values. Geo fields are
// left empty; the caller fills them in if a geo lookup is enabled.
func Resolve(userAgent, forwardedFor, realIP string) Info {
	return Info{
		UserAgent: userAgent,
		IPAddress: ExtractIP(forwardedFor, realIP),
		Device:    ClassifyDevice(userAgent),
		Browser:   ParseBrowser(userAgent),
	}
}

// ExtractIP picks the client address: first X-Forwarded-For hop, then
// X-Real-IP, then the loopback sentinel.
func ExtractIP(forwardedFor, realIP string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(realIP); ip != "" {
		return ip
	}
	return LoopbackIP
}

// ClassifyDevice buckets a user agent into desktop, mobile, or tablet.
// Tablet is checked first: tablet user agents usually also claim "mobile".
func ClassifyDevice(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		return DeviceTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone"):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

// browser signatures in match order. Edge and Opera embed "chrome" in their
// user agents, and Chrome embeds "safari", so order matters.
var browserSignatures = []struct {
	token string
	name  string
}{
	{"edg", "Edge"},
	{"opr", "Opera"},
	{"opera", "Opera"},
	{"chrome", "Chrome"},
	{"firefox", "Firefox"},
	{"safari", "Safari"},
}

// ParseBrowser produces a "<name> <major-version>" string from a user
// agent, or UnknownBrowser when nothing matches.
func ParseBrowser(userAgent string) string {
	if userAgent == "" {
		return UnknownBrowser
	}
	ua := strings.ToLower(userAgent)
	for _, sig := range browserSignatures {
		idx := strings.Index(ua, sig.token)
		if idx < 0 {
			continue
		}
		if sig.name == "Safari" {
			// The number after "safari/" is the WebKit build, not the
			// release. Safari carries its version in a "version/x" token.
			if i := strings.Index(ua, "version/"); i >= 0 {
				if v := majorVersionAfter(ua, i+len("version")); v != "" {
					return "Safari " + v
				}
			}
			return "Safari"
		}
		if v := majorVersionAfter(ua, idx+len(sig.token)); v != "" {
			return sig.name + " " + v
		}
		return sig.name
	}
	return UnknownBrowser
}

// majorVersionAfter reads the digits following a "/" at pos, stopping at the
// first dot.
func majorVersionAfter(ua string, pos int) string {
	if pos >= len(ua) || ua[pos] != '/' {
		return ""
	}
	end := pos + 1
	for end < len(ua) && ua[end] >= '0' && ua[end] <= '9' {
		end++
	}
	return ua[pos+1 : end]
}

// DeriveSessionID builds a collision-tolerant session key from the client
// address, user agent, and the current hour. Callers that track sessions
// client-side pass their own key instead.
func DeriveSessionID(ip, userAgent string, now time.Time) string {
	h := sha256.New()
	h.Write([]byte(ip))
	h.Write([]byte("|"))
	h.Write([]byte(userAgent))
	h.Write([]byte("|"))
	h.Write([]byte(now.UTC().Format("2006010215")))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// IsPrivateIP reports whether the address is loopback, link-local, or in a
// private range. Geo lookups are skipped for these.
func IsPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	return parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsLinkLocalUnicast() || parsed.IsUnspecified()
}

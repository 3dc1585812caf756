package http

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// trustedProxies defines networks that are trusted to set forwarding headers.
var trustedProxies = []*net.IPNet{
	parsecidr("127.0.0.0/8"),    // localhost
	parsecidr("10.0.0.0/8"),     // private networks
	parsecidr("172.16.0.0/12"),  // private networks
	parsecidr("192.168.0.0/16"), // private networks
}

// parsecidr is a helper to parse CIDR during initialization.
func parsecidr(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

// isTrustedProxy checks if an IP is from a trusted proxy.
func isTrustedProxy(ip net.IP) bool {
	for _, network := range trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// extractClientIP extracts the real client IP, validating forwarded headers.
func extractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsedDirectIP := net.ParseIP(directIP)
	if parsedDirectIP == nil {
		return directIP
	}

	if isTrustedProxy(parsedDirectIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ips := strings.Split(xff, ",")
			if len(ips) > 0 {
				clientIP := strings.TrimSpace(ips[0])
				if parsedIP := net.ParseIP(clientIP); parsedIP != nil {
					return clientIP
				}
			}
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if parsedIP := net.ParseIP(xri); parsedIP != nil {
				return xri
			}
		}
	}

	return directIP
}

// Reasons reported by suspicionReason.
const (
	reasonTraversal   = "path_traversal"
	reasonInjection   = "query_injection"
	reasonScanner     = "scanner_agent"
	reasonNonJSONBody = "non_json_body"
	reasonLongURL     = "long_url"
	reasonProxyChain  = "proxy_chain"
)

const maxURLLength = 2048

// injectionMarkers never appear in the month, bucket, role or filter
// parameters this API accepts.
var injectionMarkers = []string{"../", "<script", "javascript:", "union select", "' or ", "--", ";"}

var scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab", "scanner"}

// suspicionReason returns why a request to a JSON API route looks like
// probing traffic, or "" when it looks normal. Flagged requests are counted
// and logged, not blocked.
func suspicionReason(r *http.Request) string {
	path := strings.ToLower(r.URL.Path)
	if strings.Contains(path, "..") || strings.Contains(path, "\\") || strings.ContainsRune(path, 0) {
		return reasonTraversal
	}

	if r.URL.RawQuery != "" {
		query := strings.ToLower(r.URL.RawQuery)
		if unescaped, err := url.QueryUnescape(query); err == nil {
			query = unescaped
		}
		for _, m := range injectionMarkers {
			if strings.Contains(query, m) {
				return reasonInjection
			}
		}
	}

	agent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, a := range scannerAgents {
		if strings.Contains(agent, a) {
			return reasonScanner
		}
	}

	if r.Method == http.MethodPost && r.ContentLength != 0 {
		ct, _, _ := strings.Cut(r.Header.Get("Content-Type"), ";")
		if strings.TrimSpace(strings.ToLower(ct)) != "application/json" {
			return reasonNonJSONBody
		}
	}

	if len(r.URL.String()) > maxURLLength {
		return reasonLongURL
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5 {
		return reasonProxyChain
	}
	return ""
}

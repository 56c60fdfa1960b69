package ratelimit

import (
	"strings"
	"time"
)

// Rule limits one route. Paths ending in "/" match by prefix.
type Rule struct {
	Path   string
	Method string
	Limit  int
	Window time.Duration
	Burst  int
}

// key groups requests sharing a bucket: prefix rules share one bucket for
// the whole subtree.
func (r *Rule) key(path string) string {
	if r.Path == "" {
		return path
	}
	return r.Path
}

// DefaultRules returns the built-in route limits. Chat calls cost a model
// round trip, so they get chatLimit per chatWindow.
func DefaultRules(chatLimit int, chatWindow time.Duration) []Rule {
	chatBurst := max(1, chatLimit/6)
	return []Rule{
		{Path: "/chat/", Method: "POST", Limit: chatLimit, Window: chatWindow, Burst: chatBurst},
		{Path: "/ws/chat", Method: "GET", Limit: chatLimit, Window: chatWindow, Burst: chatBurst},
		{Path: "/admin/token", Method: "POST", Limit: 10, Window: time.Minute, Burst: 5},
		{Path: "/upload-csv/", Method: "POST", Limit: 20, Window: time.Hour, Burst: 5},
		{Path: "/api/companies/", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/api/companies/", Method: "PUT", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/api/companies/", Method: "PATCH", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/api/companies/", Method: "DELETE", Limit: 100, Window: time.Minute, Burst: 10},
	}
}

// Match returns the rule for path and method, or nil to use the default.
// Health and metrics probes are never limited.
func Match(path, method string, rules []Rule) *Rule {
	if method == "GET" && (path == "/health" || path == "/metrics") {
		return &Rule{}
	}

	for i := range rules {
		if rules[i].Method == method && rules[i].Path == path {
			return &rules[i]
		}
	}
	for i := range rules {
		r := &rules[i]
		if r.Method == method && strings.HasSuffix(r.Path, "/") && strings.HasPrefix(path, r.Path) {
			return r
		}
	}
	return nil
}

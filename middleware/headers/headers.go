// Package headers aplica o conjunto fixo de headers de segurança em todas as
// respostas, inclusive nas respostas de erro geradas pelo próprio gateway.
package headers

import (
	"net/http"
	"strings"
)

const (
	ContentSecurityPolicy = "default-src 'self'; " +
		"script-src 'self' 'unsafe-inline'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data: https:; " +
		"font-src 'self' https:; " +
		"connect-src 'self'; " +
		"frame-ancestors 'none'; " +
		"base-uri 'self'; " +
		"form-action 'self'"

	PermissionsPolicy = "geolocation=(), microphone=(), camera=(), payment=(), usb=(), " +
		"magnetometer=(), gyroscope=(), speaker=()"
)

// Security é o conjunto aplicado em toda resposta.
var Security = map[string]string{
	"X-Content-Type-Options":            "nosniff",
	"X-Frame-Options":                   "DENY",
	"X-XSS-Protection":                  "1; mode=block",
	"Strict-Transport-Security":         "max-age=31536000; includeSubDomains; preload",
	"Content-Security-Policy":           ContentSecurityPolicy,
	"Referrer-Policy":                   "strict-origin-when-cross-origin",
	"Permissions-Policy":                PermissionsPolicy,
	"X-Permitted-Cross-Domain-Policies": "none",
}

// NoStore é aplicado quando o path contém algum dos NoStorePaths.
var NoStore = map[string]string{
	"Cache-Control": "no-store, no-cache, must-revalidate, private",
	"Pragma":        "no-cache",
	"Expires":       "0",
}

var DefaultNoStorePaths = []string{"/api/auth/", "/api/users/"}

// Injector é stateless depois de construído.
type Injector struct {
	// Extra é aplicado depois do conjunto fixo (e pode sobrescrevê-lo).
	Extra map[string]string
	// NoStorePaths: substrings de path que recebem NoStore. nil usa DefaultNoStorePaths.
	NoStorePaths []string
}

// Apply usa Set, nunca Add: chamar várias vezes não duplica valores e
// substitui o que o upstream tenha enviado.
func (in Injector) Apply(h http.Header, path string) {
	for k, v := range Security {
		h.Set(k, v)
	}
	for k, v := range in.Extra {
		h.Set(k, v)
	}
	if in.noStore(path) {
		for k, v := range NoStore {
			h.Set(k, v)
		}
	}
}

func (in Injector) noStore(path string) bool {
	paths := in.NoStorePaths
	if paths == nil {
		paths = DefaultNoStorePaths
	}
	for _, p := range paths {
		if p != "" && strings.Contains(path, p) {
			return true
		}
	}
	return false
}

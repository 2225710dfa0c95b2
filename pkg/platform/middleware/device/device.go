// Package device derives a human-readable device description from the
// User-Agent header. Audit events carry the description so security reviews
// can tell a browser session from a CLI script without storing the raw
// User-Agent string.
package device

import (
	"fmt"
	"net/http"
	"strings"

	"grantor/pkg/requestcontext"

	"github.com/mssola/useragent"
)

// Middleware parses the User-Agent header and stores the device description
// in the context. Runs after metadata.ClientMetadata is harmless but not
// required; it reads the header directly.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithDevice(r.Context(), Describe(r.Header.Get("User-Agent")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Describe renders a User-Agent string as "Browser x.y on OS". Unparseable
// or empty strings come back as "unknown device".
func Describe(uaString string) string {
	uaString = strings.TrimSpace(uaString)
	if uaString == "" {
		return "unknown device"
	}
	ua := useragent.New(uaString)
	if ua.Bot() {
		return "bot"
	}
	name, version := ua.Browser()
	os := ua.OS()
	switch {
	case name == "" && os == "":
		return "unknown device"
	case name == "":
		return os
	case os == "":
		return browserLabel(name, version)
	}
	return fmt.Sprintf("%s on %s", browserLabel(name, version), os)
}

func browserLabel(name, version string) string {
	if version == "" {
		return name
	}
	// Keep the major version only; full versions churn too fast to be
	// useful in an audit trail.
	if idx := strings.Index(version, "."); idx != -1 {
		version = version[:idx]
	}
	return fmt.Sprintf("%s %s", name, version)
}

// Package device turns raw User-Agent strings into human-readable device
// names for login logging.
package device

import (
	"fmt"

	"github.com/mssola/useragent"
)

// ParseUserAgent returns a display name like "Chrome on Mac OS X".
// Unparseable or empty strings yield "Unknown Device".
func ParseUserAgent(ua string) string {
	if ua == "" {
		return "Unknown Device"
	}

	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	os := parsed.OSInfo().Name

	switch {
	case browser != "" && os != "":
		return fmt.Sprintf("%s on %s", browser, os)
	case browser != "":
		return browser
	case os != "":
		return os
	default:
		return "Unknown Device"
	}
}

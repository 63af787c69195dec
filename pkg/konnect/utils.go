package konnect

import (
	"net/url"
	"strings"
)

func emptyString(p *string) bool {
	return p == nil || *p == ""
}

// getGlobalEndpoint maps a regional API address such as
// https://eu.api.konghq.com to its global counterpart. Addresses that are
// not under an "api." domain are returned without their path.
func getGlobalEndpoint(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	switch {
	case strings.HasPrefix(u.Host, "api."):
		u.Host = "global." + u.Host
	case strings.Contains(u.Host, ".api."):
		u.Host = "global" + u.Host[strings.Index(u.Host, ".api."):]
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String()
}

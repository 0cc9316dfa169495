package cytomine

import "strings"

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"
)

// ParseHost normalises a Cytomine host. The scheme is taken from the host when
// present, then from protocol, and defaults to http. The returned host has no
// scheme and no trailing slash.
//
//	ParseHost("localhost-core", "")                  // "localhost-core", "http"
//	ParseHost("https://demo.cytomine.coop", "http")  // "demo.cytomine.coop", "https"
func ParseHost(host string, protocol string) (string, string) {
	scheme := schemeHTTP

	switch {
	case strings.HasPrefix(host, "http://"):
		scheme = schemeHTTP
	case strings.HasPrefix(host, "https://"):
		scheme = schemeHTTPS
	case protocol != "":
		p := strings.TrimSuffix(protocol, "://")
		if p == schemeHTTP || p == schemeHTTPS {
			scheme = p
		}
	}

	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimSuffix(host, "/")

	return host, scheme
}

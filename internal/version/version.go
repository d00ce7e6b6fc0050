// Package version holds the service identity surfaced by the health and info
// endpoints.
package version

const (
	Service     = "pdfhub"
	Version     = "1.0.0"
	Description = "HTML to PDF converter with request tracking"
)

// Info returns the service metadata as a map, ready for JSON responses.
func Info() map[string]string {
	return map[string]string{
		"service":     Service,
		"version":     Version,
		"description": Description,
	}
}

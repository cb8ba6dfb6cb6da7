// Package version carries build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// These will be set by ldflags during build
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Product is the client name reported to the ingestion API.
const Product = "logframe-shipper"

// UserAgent returns the User-Agent header value for outgoing requests.
func UserAgent() string {
	return fmt.Sprintf("%s %s", Product, Version)
}

// Info returns the build metadata as a flat map for JSON output.
func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"gitCommit": GitCommit,
		"buildTime": BuildTime,
		"goVersion": runtime.Version(),
		"goos":      runtime.GOOS,
		"goarch":    runtime.GOARCH,
	}
}

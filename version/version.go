// Package version exposes the build version, set at link time.
package version

// Version is the current alignd version, overridden by the build.
var Version = "0.1.0-dev"

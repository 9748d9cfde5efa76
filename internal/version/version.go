// Package version exposes the build version, overridden at link time with
// -ldflags "-X github.com/drksbr/xmlabridge/internal/version.Version=...".
package version

var Version = "dev"

// Package version holds the gridrows build version.
package version

// Version is overridden at build time via:
//
//	go build -ldflags "-X github.com/vanderheijden86/gridrows/pkg/version.Version=v0.2.0"
var Version = "v0.1.0-dev"

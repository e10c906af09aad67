// Package version provides build and version information for TuringBot.
package version

// Version is the current release version of TuringBot.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/minofeel/TuringBot/internal/version.Version=x.y.z"
var Version = "0.3.0"

// Package version provides build and version information for Adventure Engine.
package version

// Version is the current release version of Adventure Engine.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/AdventureEngine/internal/version.Version=x.y.z"
var Version = "0.3.0"

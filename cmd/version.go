// File: cmd/version.go
package cmd

// Version is the application version.
// It is set at build time with ldflags:
// go build -ldflags "-X github.com/skjsjhb/LCAP/cmd.Version=1.2.0" ./cmd/lcap
var Version = "dev"

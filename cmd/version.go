package cmd

// Version is the application version, set at build time via ldflags:
//
//	go build -ldflags "-X github.com/codeguard-dev/codeguard/cmd.Version=1.2.3"
var Version = "0.1.0"

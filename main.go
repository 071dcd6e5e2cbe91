package main

import "github.com/storacha/certifier/cmd"

// Build information (set by ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	cmd.Version = Version
	cmd.Commit = Commit
	cmd.BuildTime = BuildTime

	cmd.Execute()
}

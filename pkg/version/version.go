package version

import "runtime"

// Version is injected by the build system via ldflags
var Version string

// GitCommit is the commit the binary was built from, injected via ldflags
var GitCommit string

// Name is the client name used in CTCP VERSION replies and the default
// realname.
const Name = "ircc"

// GetVersion returns Version, v0.1.0 when unset, followed by the short
// commit when known.
func GetVersion() string {
	version := Version
	if version == "" {
		version = "v0.1.0"
	}

	commit := GitCommit
	if commit == "" {
		return version
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return version + "-" + commit
}

// CTCP is the answer to a CTCP VERSION query, e.g. "ircc v0.1.0 (go1.25 linux/amd64)".
func CTCP() string {
	return Name + " " + GetVersion() + " (" + runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH + ")"
}

// Realname is used when a server entry does not configure one.
func Realname() string {
	return Name + " " + GetVersion()
}

package version

var (
	// Version is the version of vpower, set at build time.
	Version = "UNKNOWN"
	// GitCommit is the commit vpower was built from, set at build time.
	GitCommit = "UNKNOWN"
)

package version

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/alvmarrod/link-weaver/internal/version.Version=..."
var Version = "0.1.0"

// Commit is the source revision the binary was built from
var Commit = "unknown"

// String returns the version with its commit
func String() string {
	return Version + " (" + Commit + ")"
}

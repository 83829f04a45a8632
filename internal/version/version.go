package version

// Build metadata, set with -ldflags "-X spotplot/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

package utils

// Build metadata, stamped by the release build with
// -ldflags "-X github.com/papercomputeco/shelf/pkg/utils.Version=v1.2.3" and
// likewise for Sha and Buildtime.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "unknown"
)

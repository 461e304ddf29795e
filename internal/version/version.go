// In file: internal/version/version.go

// Package version centralizes the versioning for the gateway's logical
// components. The component versions participate in answer cache keys, so
// bumping one invalidates every cached answer that depended on it.
package version

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// App is the gateway release version, reported on /healthz and used as the
// MCP client version during the initialize handshake.
const App = "0.3.0"

// ComponentVersions holds the version strings for the logical parts of the
// routing pipeline. Increment a version here before deploying a change to
// that component.
var ComponentVersions = struct {
	// Providers should be updated whenever the provider set or their
	// capability tags change in a way that affects which provider answers.
	Providers string

	// Scorer should be updated whenever the confidence weights or the
	// matching rules change.
	Scorer string

	// PromptLogic should be updated whenever the candidate instruction or
	// fallback prompt templates change.
	PromptLogic string
}{
	Providers:   "v1.0",
	Scorer:      "v1.1",
	PromptLogic: "v1.0",
}

// GenerateVersionedCacheKey creates a consistent, version-aware key for
// caching routed answers.
//
// It combines a prefix, a hash of the query, and the current versions of all
// routing components, so a change to any component stops matching old
// entries instead of serving stale answers.
//
// Example output: "routecache:a1b2c3d4...:pv1.0_sv1.1_lv1.0"
func GenerateVersionedCacheKey(prefix, query string) string {
	hasher := sha256.New()
	hasher.Write([]byte(query))
	queryHash := hex.EncodeToString(hasher.Sum(nil))

	versionString := fmt.Sprintf("pv%s_sv%s_lv%s",
		ComponentVersions.Providers,
		ComponentVersions.Scorer,
		ComponentVersions.PromptLogic,
	)

	return fmt.Sprintf("%s:%s:%s", prefix, queryHash, versionString)
}

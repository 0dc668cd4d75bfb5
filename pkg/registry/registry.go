// Package registry defines the packages.json manifest schema of the hoop
// plugin registry and the mutation applied when a new release is published.
//
// The manifest is a single JSON document owned by the object store. It is
// read as a whole, mutated in memory and rewritten as a whole, so two
// publishers racing on the same manifest key can lose updates
// (last-writer-wins, no merge).
package registry

import (
	"fmt"
	"time"
)

// DefaultNamespace is the namespace all hoop plugins are published under.
const DefaultNamespace = "hoop"

type Platform struct {
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
}

// PluginVersion is one published release of a plugin. Size and Digest
// describe the raw binary, URL points at the uploaded tar.gz archive.
type PluginVersion struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Size      int64     `json:"size"`
	Digest    string    `json:"digest"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	Platform  Platform  `json:"platform"`
}

// Package holds all published versions of one plugin, newest first.
type Package struct {
	Versions []*PluginVersion `json:"versions"`
}

// Manifest is the top-level packages.json document, keyed by
// "<namespace>/<plugin-name>".
type Manifest map[string]*Package

// PackageKey returns the manifest key for a plugin.
func PackageKey(namespace, name string) string {
	return fmt.Sprintf("%s/%s", namespace, name)
}

// NewDigest formats a hex-encoded SHA-256 sum as an algorithm-prefixed
// digest string.
func NewDigest(hexSum string) string {
	return fmt.Sprintf("sha256:%s", hexSum)
}

// AddRelease prepends a new version to the package identified by key. If
// the package does not exist yet it is created with a singleton version
// list.
func (m Manifest) AddRelease(key string, pv *PluginVersion) {
	pkg, ok := m[key]
	if !ok {
		m[key] = &Package{Versions: []*PluginVersion{pv}}
		return
	}
	pkg.Versions = append([]*PluginVersion{pv}, pkg.Versions...)
}

// Package catalog provides content providers for the synchronizer.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	domain "github.com/okian/quorum/internal/domain/catalog"
)

// manifestGroup is one group entry of the YAML manifest:
//
//	groups:
//	  - id: g01
//	    prompt: a red fox running through snow
//	    reference: refs/g01.mp4
//	    candidates:
//	      - id: model-a
//	        locator: g01/model-a.mp4
type manifestGroup struct {
	ID         string              `koanf:"id"`
	Prompt     string              `koanf:"prompt"`
	Reference  string              `koanf:"reference"`
	Candidates []manifestCandidate `koanf:"candidates"`
}

type manifestCandidate struct {
	ID      string `koanf:"id"`
	Locator string `koanf:"locator"`
}

// ManifestProvider re-reads a YAML manifest on every snapshot so edits
// are picked up by the next scan.
type ManifestProvider struct {
	path string
}

// NewManifestProvider creates a provider for the manifest at path.
func NewManifestProvider(path string) *ManifestProvider {
	return &ManifestProvider{path: path}
}

// Snapshot parses the manifest. A missing or malformed file is an error,
// never an empty listing.
func (p *ManifestProvider) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	if strings.TrimSpace(p.path) == "" {
		return domain.Snapshot{}, ErrNoManifest
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(p.path), yaml.Parser()); err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %s: %w", ErrReadManifest, p.path, err)
	}
	if !k.Exists("groups") {
		return domain.Snapshot{}, fmt.Errorf("%w: %s has no groups key", ErrReadManifest, p.path)
	}
	var groups []manifestGroup
	if err := k.UnmarshalWithConf("groups", &groups, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: %s: %w", ErrReadManifest, p.path, err)
	}

	var snap domain.Snapshot
	for _, g := range groups {
		for _, c := range g.Candidates {
			snap.Entries = append(snap.Entries, domain.Entry{
				GroupID:          strings.TrimSpace(g.ID),
				CandidateID:      strings.TrimSpace(c.ID),
				PromptText:       strings.TrimSpace(g.Prompt),
				ReferenceLocator: g.Reference,
				CandidateLocator: c.Locator,
			})
		}
	}
	return snap, nil
}

// StaticProvider serves a snapshot held in memory.
type StaticProvider struct {
	mu   sync.RWMutex
	snap domain.Snapshot
}

// NewStaticProvider creates a provider serving snap.
func NewStaticProvider(snap domain.Snapshot) *StaticProvider {
	return &StaticProvider{snap: snap}
}

// Set replaces the served snapshot.
func (p *StaticProvider) Set(snap domain.Snapshot) {
	p.mu.Lock()
	p.snap = snap
	p.mu.Unlock()
}

// Snapshot returns a copy of the current snapshot.
func (p *StaticProvider) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return domain.Snapshot{Entries: append([]domain.Entry(nil), p.snap.Entries...)}, nil
}

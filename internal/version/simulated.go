package version

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/astrodata/apod-pipeline/internal/models"
)

// manifestFile mirrors the .dvc file layout the real tool writes, so
// simulated manifests stay drop-in compatible with it.
type manifestFile struct {
	Outs []manifestOut `yaml:"outs"`
}

type manifestOut struct {
	MD5  string `yaml:"md5"`
	Size int64  `yaml:"size"`
	Hash string `yaml:"hash,omitempty"`
	Path string `yaml:"path"`
}

// SimulatedVersioner computes an MD5 content checksum directly and writes
// the manifest itself. The checksum is a pure function of the artifact's
// bytes, so an unchanged artifact always yields an identical manifest.
type SimulatedVersioner struct{}

// NewSimulatedVersioner builds the degraded-mode versioner.
func NewSimulatedVersioner() *SimulatedVersioner {
	return &SimulatedVersioner{}
}

func (v *SimulatedVersioner) Name() string { return "simulated" }

// Version hashes the artifact and writes <artifact>.dvc next to it. Only an
// unreadable artifact is an error.
func (v *SimulatedVersioner) Version(ctx context.Context, artifactPath string) (models.VersionManifest, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return models.VersionManifest{}, &VersioningError{Path: artifactPath, Err: err}
	}

	sum := md5.Sum(data)
	checksum := hex.EncodeToString(sum[:])

	mf := manifestFile{Outs: []manifestOut{{
		MD5:  checksum,
		Size: int64(len(data)),
		Hash: "md5",
		Path: filepath.Base(artifactPath),
	}}}
	out, err := yaml.Marshal(mf)
	if err != nil {
		return models.VersionManifest{}, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(artifactPath+ManifestExt, out, 0o644); err != nil {
		return models.VersionManifest{}, fmt.Errorf("write manifest: %w", err)
	}

	return models.VersionManifest{
		ArtifactPath: artifactPath,
		Checksum:     checksum,
		SizeBytes:    int64(len(data)),
		ProducedBy:   models.ProducedBySimulated,
	}, nil
}

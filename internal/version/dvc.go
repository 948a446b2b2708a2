package version

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/astrodata/apod-pipeline/internal/models"
	"github.com/astrodata/apod-pipeline/internal/util"
)

// DVCVersioner shells out to the real tool. Any tool failure degrades to
// the simulated versioner instead of failing the stage.
type DVCVersioner struct {
	runner   util.CommandRunner
	fallback *SimulatedVersioner
}

// NewDVCVersioner builds the real-tool versioner.
func NewDVCVersioner(runner util.CommandRunner) *DVCVersioner {
	return &DVCVersioner{runner: runner, fallback: NewSimulatedVersioner()}
}

func (v *DVCVersioner) Name() string { return "dvc" }

// Version runs `dvc add` in the artifact's directory and reads the checksum
// back from the emitted .dvc file.
func (v *DVCVersioner) Version(ctx context.Context, artifactPath string) (models.VersionManifest, error) {
	if _, err := os.Stat(artifactPath); err != nil {
		return models.VersionManifest{}, &VersioningError{Path: artifactPath, Err: err}
	}

	dir := filepath.Dir(artifactPath)
	base := filepath.Base(artifactPath)
	if _, stderr, err := v.runner.Run(ctx, dir, "dvc", "add", base); err != nil {
		log.Printf("version: dvc add failed (%v: %s), falling back to simulated manifest", err, stderr)
		return v.fallback.Version(ctx, artifactPath)
	}

	data, err := os.ReadFile(artifactPath + ManifestExt)
	if err != nil {
		log.Printf("version: dvc produced no manifest (%v), falling back to simulated manifest", err)
		return v.fallback.Version(ctx, artifactPath)
	}
	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil || len(mf.Outs) == 0 {
		log.Printf("version: unparsable dvc manifest, falling back to simulated manifest")
		return v.fallback.Version(ctx, artifactPath)
	}

	return models.VersionManifest{
		ArtifactPath: artifactPath,
		Checksum:     mf.Outs[0].MD5,
		SizeBytes:    mf.Outs[0].Size,
		ProducedBy:   models.ProducedByRealTool,
	}, nil
}

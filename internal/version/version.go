// Package version produces content-addressed manifests for the flat
// dataset, through the real DVC tool when available and a simulated
// manifest otherwise.
package version

import (
	"context"
	"fmt"
	"log"

	"github.com/astrodata/apod-pipeline/internal/models"
	"github.com/astrodata/apod-pipeline/internal/util"
)

// ManifestExt is the conventional suffix of the manifest file, matching
// what the real tool emits next to the artifact.
const ManifestExt = ".dvc"

// VersioningError reports an artifact that could not be read at all. The
// pipeline treats it as a warning, not a run failure.
type VersioningError struct {
	Path string
	Err  error
}

func (e *VersioningError) Error() string {
	return fmt.Sprintf("versioning failed for %s: %v", e.Path, e.Err)
}

func (e *VersioningError) Unwrap() error { return e.Err }

// Versioner produces a manifest for the artifact's current byte content.
type Versioner interface {
	Name() string
	Version(ctx context.Context, artifactPath string) (models.VersionManifest, error)
}

// Detect probes for a working DVC binary once at startup and selects the
// matching Versioner variant. Probe failure is never fatal.
func Detect(ctx context.Context, runner util.CommandRunner) Versioner {
	if _, _, err := runner.Run(ctx, "", "dvc", "version"); err == nil {
		log.Printf("version: dvc available, using real tool")
		return NewDVCVersioner(runner)
	}
	log.Printf("version: dvc unavailable, producing simulated manifests")
	return NewSimulatedVersioner()
}

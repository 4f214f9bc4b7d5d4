package catalog

import (
	"context"
	"runtime"
	"time"

	"github.com/airbusgeo/enmap-catalog/catalog/entities"
	"github.com/airbusgeo/enmap-catalog/common"
	"github.com/airbusgeo/enmap-catalog/service/log"
	"golang.org/x/sync/errgroup"
)

// Resolver resolves the download and preview urls of scenes
type Resolver struct {
	Templates URLTemplates
	// Workers is the maximum number of scenes resolved concurrently (default: number of CPUs)
	Workers int
}

// NewResolver creates a resolver with the default templates
func NewResolver() *Resolver {
	return &Resolver{Templates: DefaultURLTemplates()}
}

// ResolveScene returns the result of the scene, with non-empty data and preview urls.
// The urls are built from the identifier of the scene (or the fallback templates if it cannot be parsed),
// then overridden by the first usable asset of DataAssetCandidates (resp. PreviewAssetCandidates).
func (r *Resolver) ResolveScene(scene *entities.Scene) entities.Result {
	var dataURL, previewURL string
	if info, err := common.Info(scene.ID); err == nil {
		dataURL, previewURL = r.Templates.Canonical(info)
	} else {
		dataURL, previewURL = r.Templates.Fallback(scene.ID)
	}

	result := entities.Result{
		ID:              scene.ID,
		CloudCover:      scene.CloudCover(),
		DataURL:         OverrideFromAssets(scene.Assets, DataAssetCandidates, dataURL),
		PreviewURL:      OverrideFromAssets(scene.Assets, PreviewAssetCandidates, previewURL),
		AvailableAssets: scene.Assets.Names(),
	}
	if scene.Datetime != nil {
		dt := scene.Datetime.UTC().Format(time.RFC3339Nano)
		result.Datetime = &dt
	}
	return result
}

// ResolveScenes resolves the scenes concurrently. The i-th result is the resolution of the i-th scene.
func (r *Resolver) ResolveScenes(ctx context.Context, scenes []*entities.Scene) []entities.Result {
	results := make([]entities.Result, len(scenes))
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var wg errgroup.Group
	wg.SetLimit(workers)
	for i, scene := range scenes {
		i, scene := i, scene
		wg.Go(func() error {
			results[i] = r.ResolveScene(scene)
			return nil
		})
	}
	wg.Wait()

	log.Logger(ctx).Sugar().Debugf("%d scenes resolved", len(results))
	return results
}

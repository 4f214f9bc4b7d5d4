package catalog

import (
	"context"
	"errors"

	"github.com/airbusgeo/enmap-catalog/catalog/entities"
)

// ErrInvalidSearch is returned by a ScenesProvider when the search parameters are not valid
var ErrInvalidSearch = errors.New("invalid search")

// ScenesProvider searches the scenes intersecting an area during an interval of time
type ScenesProvider interface {
	SearchScenes(ctx context.Context, area *entities.Area) (entities.Scenes, error)
}

package dataset

import (
	"fmt"
	"math/rand"

	"github.com/banshee-data/pointnet/internal/mesh"
	"github.com/banshee-data/pointnet/internal/pointcloud"
)

// LoadedExample is a sampled, normalized point cloud with its class id.
type LoadedExample struct {
	Cloud pointcloud.Cloud
	Label int
	Path  string
}

// LoadSplit samples numPoints surface points from every mesh in examples and
// normalizes each cloud to the unit sphere. Unreadable or degenerate meshes
// are skipped with a log line; the split only fails if nothing loads.
func LoadSplit(examples []Example, numPoints int, rng *rand.Rand) ([]LoadedExample, error) {
	loaded := make([]LoadedExample, 0, len(examples))
	skipped := 0

	for i, ex := range examples {
		m, err := mesh.LoadFile(ex.Path)
		if err != nil {
			logf("skipping %s: %v", ex.Path, err)
			skipped++
			continue
		}
		cloud, err := mesh.SamplePoints(m, numPoints, rng)
		if err != nil {
			logf("skipping %s: %v", ex.Path, err)
			skipped++
			continue
		}
		cloud.NormalizeUnitSphere()
		loaded = append(loaded, LoadedExample{Cloud: cloud, Label: ex.Label, Path: ex.Path})

		if (i+1)%200 == 0 {
			logf("sampled %d/%d meshes", i+1, len(examples))
		}
	}

	if len(loaded) == 0 {
		return nil, fmt.Errorf("no meshes loaded (%d skipped)", skipped)
	}
	if skipped > 0 {
		logf("loaded %d meshes, skipped %d", len(loaded), skipped)
	}
	return loaded, nil
}

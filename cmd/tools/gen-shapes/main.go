// Command gen-shapes generates a synthetic OFF mesh dataset for testing the
// training pipeline without downloading ModelNet. Each class directory gets
// randomized instances split into train/ and test/.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/banshee-data/pointnet/internal/mesh"
)

func main() {
	output := flag.String("o", "shapes", "output directory")
	trainPer := flag.Int("train", 20, "training meshes per class")
	testPer := flag.Int("test", 5, "test meshes per class")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	total := 0
	for _, class := range classNames() {
		for split, count := range map[string]int{"train": *trainPer, "test": *testPer} {
			dir := filepath.Join(*output, class, split)
			if err := os.MkdirAll(dir, 0755); err != nil {
				log.Fatalf("failed to create %s: %v", dir, err)
			}
			for i := 0; i < count; i++ {
				m := randomShape(class, rng)
				path := filepath.Join(dir, fmt.Sprintf("%s_%04d.off", class, i))
				if err := writeMesh(path, m); err != nil {
					log.Fatalf("failed to write %s: %v", path, err)
				}
				total++
			}
		}
		log.Printf("generated class %s", class)
	}
	log.Printf("✓ Created %d meshes under %s", total, *output)
}

func writeMesh(path string, m *mesh.Mesh) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return mesh.WriteOFF(f, m)
}

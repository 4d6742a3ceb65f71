// Package dataset turns a ModelNet-style directory tree of mesh files into
// the batched training tensors the classifier consumes. The expected layout
// is <root>/<class>/{train,test}/*.off; class ids are assigned by sorted
// directory name and are stable for a given tree.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Example references one mesh file and its class id.
type Example struct {
	Path  string
	Label int
}

// Index is the catalog of a dataset tree: the class map plus the train and
// test example lists. It is built once and read thereafter.
type Index struct {
	Root    string
	Classes []string // class id -> class name
	Train   []Example
	Test    []Example
}

// BuildIndex scans a dataset root and catalogs its classes and examples.
// Directories without train/ or test/ subdirectories are skipped, as are
// non-mesh files and archive artifacts like __MACOSX.
func BuildIndex(root string) (*Index, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read dataset root: %w", err)
	}

	idx := &Index{Root: root}
	var classDirs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.HasPrefix(e.Name(), "__") {
			continue
		}
		classDirs = append(classDirs, e.Name())
	}
	sort.Strings(classDirs)

	for _, class := range classDirs {
		trainFiles, trainErr := meshFiles(filepath.Join(root, class, "train"))
		testFiles, testErr := meshFiles(filepath.Join(root, class, "test"))
		if trainErr != nil && testErr != nil {
			// Not a class directory; ignore.
			continue
		}

		label := len(idx.Classes)
		idx.Classes = append(idx.Classes, class)
		for _, f := range trainFiles {
			idx.Train = append(idx.Train, Example{Path: f, Label: label})
		}
		for _, f := range testFiles {
			idx.Test = append(idx.Test, Example{Path: f, Label: label})
		}
	}

	if len(idx.Classes) == 0 {
		return nil, fmt.Errorf("no class directories found under %s", root)
	}
	return idx, nil
}

// FindRoot locates the class-directory root under baseDir. Archives like
// ModelNet10.zip extract to a single wrapper directory, so if baseDir itself
// does not index, each immediate subdirectory is tried in sorted order.
func FindRoot(baseDir string) (string, error) {
	if _, err := BuildIndex(baseDir); err == nil {
		return baseDir, nil
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return "", fmt.Errorf("read dataset dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") && !strings.HasPrefix(e.Name(), "__") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		candidate := filepath.Join(baseDir, name)
		if _, err := BuildIndex(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no dataset found under %s", baseDir)
}

// ClassName returns the name for a class id, or "unknown" when out of range.
func (idx *Index) ClassName(id int) string {
	if id < 0 || id >= len(idx.Classes) {
		return "unknown"
	}
	return idx.Classes[id]
}

// NumClasses returns the number of classes in the index.
func (idx *Index) NumClasses() int {
	return len(idx.Classes)
}

// meshFiles lists the mesh files directly under dir, sorted by name.
func meshFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".off", ".obj":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

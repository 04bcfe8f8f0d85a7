package chunk

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Naming builds chunk file paths of the form <dir>/<base>_<n>.<ext>.
type Naming struct {
	Dir           string
	Base          string
	NotSortedExt  string
	SortedExt     string
	DisposableExt string
}

// NewNaming derives chunk naming from the input path. An empty dir places
// chunks next to the input file.
func NewNaming(inputPath, dir, notSortedExt, sortedExt, disposableExt string) Naming {
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	return Naming{
		Dir:           dir,
		Base:          BaseName(inputPath),
		NotSortedExt:  strings.TrimPrefix(notSortedExt, "."),
		SortedExt:     strings.TrimPrefix(sortedExt, "."),
		DisposableExt: strings.TrimPrefix(disposableExt, "."),
	}
}

// BaseName strips the directory, a trailing .zst and the extension from path.
func BaseName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ZstdSuffix)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// UnsortedPath returns the path of unsorted chunk i.
func (n Naming) UnsortedPath(i int) string {
	return filepath.Join(n.Dir, fmt.Sprintf("%s_%d.%s", n.Base, i, n.NotSortedExt))
}

// SortedPathFor maps an unsorted chunk path to its sorted counterpart.
func (n Naming) SortedPathFor(unsortedPath string) string {
	return swapExt(unsortedPath, n.SortedExt)
}

// DisposablePath maps any chunk path to its retired name.
func (n Naming) DisposablePath(path string) string {
	return swapExt(path, n.DisposableExt)
}

// ListUnsorted returns the unsorted chunks of this input ordered by index.
func (n Naming) ListUnsorted() ([]string, error) {
	return n.list(n.NotSortedExt)
}

// ListSorted returns the sorted chunks of this input ordered by index.
func (n Naming) ListSorted() ([]string, error) {
	return n.list(n.SortedExt)
}

// Existing returns the unsorted and sorted chunks of this input already on
// disk, unsorted first. A run that starts with existing chunks overwrites
// the ones whose index it reuses and ignores the rest.
func (n Naming) Existing() ([]string, error) {
	unsorted, err := n.ListUnsorted()
	if err != nil {
		return nil, err
	}
	sorted, err := n.ListSorted()
	if err != nil {
		return nil, err
	}
	return append(unsorted, sorted...), nil
}

func (n Naming) list(ext string) ([]string, error) {
	entries, err := os.ReadDir(n.Dir)
	if err != nil {
		return nil, err
	}

	type indexed struct {
		idx  int
		path string
	}
	var found []indexed
	prefix := n.Base + "_"
	suffix := "." + ext
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix))
		if err != nil {
			continue
		}
		found = append(found, indexed{idx: idx, path: filepath.Join(n.Dir, name)})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].idx < found[j].idx })

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}

func swapExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + ext
}

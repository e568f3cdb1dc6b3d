package serializer

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// FileTree maps slash-separated paths, relative to the working-copy root, to
// file contents
type FileTree map[string][]byte

// Paths returns every path in the tree, sorted
func (t FileTree) Paths() []string {
	paths := make([]string, 0, len(t))
	for p := range t {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Equal returns true if both trees hold the same paths with identical bytes
func (t FileTree) Equal(other FileTree) bool {
	if len(t) != len(other) {
		return false
	}
	for p, data := range t {
		od, ok := other[p]
		if !ok || !bytes.Equal(data, od) {
			return false
		}
	}
	return true
}

// Managed returns the subset of the tree the serializer owns
func (t FileTree) Managed() FileTree {
	out := make(FileTree, len(t))
	for p, data := range t {
		if IsManaged(p) {
			out[p] = data
		}
	}
	return out
}

// IsManaged returns true for paths produced by Export
func IsManaged(p string) bool {
	switch p {
	case ManifestFile, SettingsFile:
		return true
	}
	for _, dir := range managedDirs {
		if strings.HasPrefix(p, dir+"/") {
			return true
		}
	}
	return false
}

var managedDirs = []string{PagesDir, ActionsDir, DatasourcesDir}

// WriteTo replaces the managed files of fs with the tree. Files outside the
// managed set (.git, README.md, anything unknown) are left alone unless the
// tree carries them.
func (t FileTree) WriteTo(fs billy.Filesystem) error {
	for _, dir := range managedDirs {
		if err := util.RemoveAll(fs, dir); err != nil {
			return fmt.Errorf("clear %s: %w", dir, err)
		}
	}
	for _, f := range []string{ManifestFile, SettingsFile} {
		if err := fs.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear %s: %w", f, err)
		}
	}

	for _, p := range t.Paths() {
		if dir := path.Dir(p); dir != "." {
			if err := fs.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
		if err := util.WriteFile(fs, p, t[p], 0644); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
	}
	return nil
}

// ReadTree reads the managed files of fs
func ReadTree(fs billy.Filesystem) (FileTree, error) {
	tree := FileTree{}

	for _, f := range []string{ManifestFile, SettingsFile} {
		data, err := util.ReadFile(fs, f)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		tree[f] = data
	}

	for _, dir := range managedDirs {
		err := util.Walk(fs, dir, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if info.IsDir() {
				return nil
			}
			data, err := util.ReadFile(fs, p)
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
			tree[filepath.ToSlash(p)] = data
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return tree, nil
}

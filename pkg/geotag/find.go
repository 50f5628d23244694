package geotag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"
)

var photoExts = []string{".jpg", ".JPG"}

// IsPhoto reports whether path has an extension we tag.
func IsPhoto(path string) bool {
	for _, ext := range photoExts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// Label returns the name a photo is listed under: its base name without extension.
func Label(path string) string {
	base := filepath.Base(path)
	for _, ext := range photoExts {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// Find returns the photos in a directory, sorted by name, or path itself if it is a file.
// Subdirectories are not descended into.
func Find(path string) ([]string, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}

	if st.Mode().IsRegular() {
		return []string{path}, nil
	}

	if !st.IsDir() {
		return nil, fmt.Errorf("%s is neither a file nor a directory", path)
	}

	des, err := godirwalk.ReadDirents(path, nil)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	found := []string{}
	for _, de := range des {
		name := de.Name()
		if name[0] == '.' || de.IsDir() || !IsPhoto(name) {
			continue
		}
		p := filepath.Join(path, name)
		klog.V(1).Infof("found %s", p)
		found = append(found, p)
	}

	sort.Strings(found)
	return found, nil
}

package geotag

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"k8s.io/klog/v2"
)

// ModTimeFormat is part of every thumbnail name so that edited photos get new thumbnails.
var ModTimeFormat = "20060102150405"

// ThumbOpts are thumbnail options.
type ThumbOpts struct {
	X       int
	Quality int
}

var defaultThumbOpts = ThumbOpts{X: 128, Quality: 80}

// Thumbnail returns the path of a thumbnail for the photo at path inside dir,
// creating it when missing.
func Thumbnail(path string, dir string, t ThumbOpts) (string, error) {
	if t.X <= 0 {
		t.X = defaultThumbOpts.X
	}
	if t.Quality <= 0 {
		t.Quality = defaultThumbOpts.Quality
	}

	st, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat: %w", err)
	}

	dst := filepath.Join(dir, thumbName(path, st.ModTime().Format(ModTimeFormat), t))
	if ts, err := os.Stat(dst); err == nil && ts.Size() > 128 {
		if _, err := readThumb(dst); err == nil {
			klog.V(1).Infof("%s exists (%d bytes)", dst, ts.Size())
			return dst, nil
		}
		klog.Warningf("unable to read thumb %s, recreating", dst)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	img, err := imgio.Open(path)
	if err != nil {
		return "", fmt.Errorf("imgio.Open: %w", err)
	}

	if err := createThumb(img, dst, t); err != nil {
		return "", fmt.Errorf("create thumb: %w", err)
	}
	return dst, nil
}

func createThumb(i image.Image, path string, t ThumbOpts) error {
	if i.Bounds().Dx() == 0 || i.Bounds().Dy() == 0 {
		return fmt.Errorf("empty image: %+v", i.Bounds())
	}

	scale := float64(i.Bounds().Dx()) / float64(t.X)
	y := int(float64(i.Bounds().Dy()) / scale)
	if y < 1 {
		y = 1
	}

	klog.V(1).Infof("creating %dx%d thumb: %s - %+v", t.X, y, path, i.Bounds())
	rimg := transform.Resize(i, t.X, y, transform.Lanczos)
	if err := imgio.Save(path, rimg, imgio.JPEGEncoder(t.Quality)); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

func readThumb(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	ic, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Config{}, fmt.Errorf("unable to decode: %w", err)
	}
	return ic, nil
}

func thumbName(path string, stamp string, t ThumbOpts) string {
	base := strings.ReplaceAll(Label(path), " ", "_")
	return fmt.Sprintf("%s@x%d_%s.jpg", base, t.X, stamp)
}

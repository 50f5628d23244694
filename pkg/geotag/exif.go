package geotag

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/barasher/go-exiftool"
	"github.com/otiai10/copy"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"k8s.io/klog/v2"
)

// GPSTags are the raw GPS fields of a photo, DMS values in "n/d n/d n/d" form.
type GPSTags struct {
	LatRef string
	LatDMS string
	LonRef string
	LonDMS string
}

// Coordinate decodes the tags into decimal degrees.
func (g GPSTags) Coordinate() (Coordinate, error) {
	lat, err := DMSToDecimal(refByte(g.LatRef), g.LatDMS)
	if err != nil {
		return Coordinate{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := DMSToDecimal(refByte(g.LonRef), g.LonDMS)
	if err != nil {
		return Coordinate{}, fmt.Errorf("longitude: %w", err)
	}
	return NewCoordinate(lat, lon)
}

func refByte(s string) byte {
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if s == "" {
		return 0
	}
	return s[0]
}

// Reader reads GPS tags from a photo.
type Reader interface {
	// ReadGPS returns nil tags, and no error, when the photo has no GPS data.
	ReadGPS(path string) (*GPSTags, error)
}

// Metadata reads and writes GPS tags.
type Metadata interface {
	Reader
	WriteGPS(path string, lat, lon float64) error
}

// Exif reads tags in-process and writes them through a shared exiftool process.
type Exif struct {
	// BackupDir, when set, receives a copy of each photo before it is first written.
	BackupDir string
	// Options are passed to exiftool when it is started.
	Options []func(*exiftool.Exiftool) error

	mu sync.Mutex
	et *exiftool.Exiftool
}

// ReadGPS reads the GPS latitude and longitude tags of path.
func (e *Exif) ReadGPS(path string) (*GPSTags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode exif for %q: %w", path, err)
	}

	g := &GPSTags{}
	fields := []struct {
		name exif.FieldName
		dst  *string
		dms  bool
	}{
		{exif.GPSLatitude, &g.LatDMS, true},
		{exif.GPSLatitudeRef, &g.LatRef, false},
		{exif.GPSLongitude, &g.LonDMS, true},
		{exif.GPSLongitudeRef, &g.LonRef, false},
	}

	for _, fd := range fields {
		tag, err := x.Get(fd.name)
		if err != nil {
			var tnp exif.TagNotPresentError
			if errors.As(err, &tnp) {
				klog.V(1).Infof("%s has no %s", path, fd.name)
				return nil, nil
			}
			return nil, fmt.Errorf("get %s: %w", fd.name, err)
		}

		if fd.dms {
			*fd.dst, err = rationalText(tag)
		} else {
			*fd.dst, err = tag.StringVal()
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fd.name, err)
		}
	}

	return g, nil
}

// rationalText renders a three-rational tag as "n/d n/d n/d".
func rationalText(tag *tiff.Tag) (string, error) {
	if tag.Count != 3 {
		return "", fmt.Errorf("%d values, want 3: %w", tag.Count, ErrMalformedDMS)
	}
	parts := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		n, d, err := tag.Rat2(i)
		if err != nil {
			return "", err
		}
		parts = append(parts, Rational{Num: n, Den: d}.String())
	}
	return strings.Join(parts, " "), nil
}

// WriteGPS stores lat/lon in the GPS tags of path.
func (e *Exif) WriteGPS(path string, lat, lon float64) error {
	if _, err := NewCoordinate(lat, lon); err != nil {
		return err
	}

	if e.BackupDir != "" {
		if err := e.backup(path); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.et == nil {
		et, err := exiftool.NewExiftool(e.Options...)
		if err != nil {
			return fmt.Errorf("exiftool: %w", err)
		}
		e.et = et
	}

	// Send the GPS tags alone; extracted composites like GPSPosition
	// would be applied on top of them.
	fm := exiftool.EmptyFileMetadata()
	fm.File = path
	fm.SetString("GPSLatitude", DecimalToDMS(lat).Plain())
	fm.SetString("GPSLatitudeRef", string(LatRef(lat)))
	fm.SetString("GPSLongitude", DecimalToDMS(lon).Plain())
	fm.SetString("GPSLongitudeRef", string(LonRef(lon)))

	klog.Infof("writing %.6f, %.6f to %s", lat, lon, path)
	fms := []exiftool.FileMetadata{fm}
	e.et.WriteMetadata(fms)
	if fms[0].Err != nil {
		return fmt.Errorf("write metadata for %q: %w", path, fms[0].Err)
	}
	return nil
}

// backup copies path into BackupDir unless a copy is already there.
func (e *Exif) backup(path string) error {
	dst := filepath.Join(e.BackupDir, filepath.Base(path))
	if _, err := os.Stat(dst); err == nil {
		klog.V(1).Infof("backup %s exists", dst)
		return nil
	}
	if err := os.MkdirAll(e.BackupDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	klog.V(1).Infof("backing up %s to %s", path, dst)
	return copy.Copy(path, dst)
}

// Close stops the exiftool process, if one was started.
func (e *Exif) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.et == nil {
		return nil
	}
	err := e.et.Close()
	e.et = nil
	return err
}

package geotag

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"k8s.io/klog/v2"
)

// ErrScanInProgress is returned when a scan is requested while another is running.
var ErrScanInProgress = errors.New("scan already in progress")

// Result describes one scanned photo.
type Result struct {
	Label string
	Path  string
	// Coord is nil when the photo has no usable GPS data.
	Coord *Coordinate
	// Thumb is the thumbnail path, empty when thumbnails are disabled or failed.
	Thumb string
	// Err records why GPS data could not be read. It never stops a scan.
	Err error
}

// Scanner reads the positions of photos in the background, one scan at a time.
type Scanner struct {
	md       Reader
	thumbDir string
	thumb    ThumbOpts
	busy     atomic.Bool
}

// NewScanner returns a scanner reading tags with md. Thumbnails are written to
// thumbDir when it is not empty.
func NewScanner(md Reader, thumbDir string, t ThumbOpts) *Scanner {
	return &Scanner{md: md, thumbDir: thumbDir, thumb: t}
}

// Busy reports whether a scan is running.
func (s *Scanner) Busy() bool {
	return s.busy.Load()
}

// Scan finds the photos at path and reads each in a background goroutine.
// Results arrive in name order; the channel is closed when all have been sent
// or ctx is done.
func (s *Scanner) Scan(ctx context.Context, path string) (<-chan Result, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}

	ps, err := Find(path)
	if err != nil {
		s.busy.Store(false)
		return nil, fmt.Errorf("find: %w", err)
	}

	klog.Infof("scanning %d photos in %s ...", len(ps), path)
	ch := make(chan Result)
	go func() {
		defer close(ch)
		defer s.busy.Store(false)

		for _, p := range ps {
			r := s.Read(p)
			select {
			case ch <- r:
			case <-ctx.Done():
				klog.Warningf("scan of %s abandoned: %v", path, ctx.Err())
				return
			}
		}
		klog.Infof("scanned %d photos in %s", len(ps), path)
	}()

	return ch, nil
}

// Read reads a single photo. Failures leave Coord nil.
func (s *Scanner) Read(path string) Result {
	r := Result{Label: Label(path), Path: path}
	klog.V(1).Infof("processing %s", path)

	g, err := s.md.ReadGPS(path)
	switch {
	case err != nil:
		klog.V(1).Infof("no GPS data for %s: %v", path, err)
		r.Err = err
	case g != nil:
		c, err := g.Coordinate()
		if err != nil {
			klog.Warningf("undecodable GPS data in %s: %v", path, err)
			r.Err = err
			break
		}
		r.Coord = &c
	}

	if s.thumbDir != "" {
		t, err := Thumbnail(path, s.thumbDir, s.thumb)
		if err != nil {
			klog.Errorf("thumbnail for %s: %v", path, err)
		}
		r.Thumb = t
	}

	return r
}

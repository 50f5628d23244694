// Package session drives a geotagging session: it owns the loaded photos, reacts to
// map clicks and menu actions, and tells a View what to show.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"k8s.io/klog/v2"

	"github.com/tstromberg/geotagger/pkg/geotag"
)

var (
	// ErrCancelled is returned when the user backs out of an action.
	ErrCancelled = errors.New("cancelled")
	// ErrStopped is returned once the session loop has exited.
	ErrStopped = errors.New("session stopped")
)

// Choice is the answer to a save/discard/cancel question.
type Choice int

const (
	// Cancel aborts the action that asked.
	Cancel Choice = iota
	// Save writes pending positions first.
	Save
	// Discard drops pending positions.
	Discard
)

func (c Choice) String() string {
	switch c {
	case Save:
		return "save"
	case Discard:
		return "discard"
	default:
		return "cancel"
	}
}

// ChooseFunc answers a save/discard/cancel question.
type ChooseFunc func(question string) Choice

// View is the presentation side of a session: a map surface plus a photo list.
type View interface {
	AddMarker(label string, c geotag.Coordinate)
	RemoveMarkers()
	SetView(center geotag.Coordinate, zoom int)
	ShowPhoto(r geotag.Record, thumb string)
	ClearPhotos()
	Status(msg string)
}

// Prompter asks the user questions.
type Prompter interface {
	Confirm(question string) bool
	Choose(question string) Choice
}

// SaveReport lists the outcome of a save.
type SaveReport struct {
	Saved  []string          `json:"saved"`
	Failed map[string]string `json:"failed,omitempty"`
}

// Session is a geotagging session. Its methods may be called from any goroutine
// once Run has been started; they are executed one at a time by the Run loop.
type Session struct {
	cfg     geotag.Config
	md      geotag.Metadata
	scanner *geotag.Scanner
	view    View
	prompt  Prompter

	ops     chan func()
	stopped chan struct{}

	// owned by the Run loop
	ctx      context.Context
	tracker  *geotag.Tracker
	results  <-chan geotag.Result
	scanDone chan struct{}
	selected []string
	thumbs   map[string]string
	dir      string
	zoom     int
}

// New returns a session. Call Run to start processing.
func New(cfg geotag.Config, md geotag.Metadata, v View, p Prompter) *Session {
	done := make(chan struct{})
	close(done)
	return &Session{
		cfg:      cfg,
		md:       md,
		scanner:  geotag.NewScanner(md, cfg.ThumbDir, geotag.ThumbOpts{X: cfg.ThumbWidth}),
		view:     v,
		prompt:   p,
		ops:      make(chan func()),
		stopped:  make(chan struct{}),
		ctx:      context.Background(),
		tracker:  geotag.NewTracker(),
		scanDone: done,
		thumbs:   map[string]string{},
		zoom:     cfg.Zoom,
	}
}

// Run processes requests and scan results until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.stopped)
	s.ctx = ctx
	s.view.SetView(s.cfg.Center(), s.zoom)

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-s.ops:
			fn()
		case r, ok := <-s.results:
			if !ok {
				s.results = nil
				close(s.scanDone)
				s.view.Status(fmt.Sprintf("%d photos loaded", s.tracker.Len()))
				continue
			}
			if _, ok := s.tracker.Get(r.Label); ok {
				klog.Warningf("%s replaces an earlier photo labelled %q", r.Path, r.Label)
			}
			s.add(r)
		}
	}
}

// do runs fn on the Run loop and waits for it.
func (s *Session) do(fn func()) error {
	done := make(chan struct{})
	select {
	case s.ops <- func() { defer close(done); fn() }:
	case <-s.stopped:
		return ErrStopped
	}
	<-done
	return nil
}

func (s *Session) add(r geotag.Result) {
	s.tracker.Load(r.Label, r.Coord, r.Path)
	s.thumbs[r.Label] = r.Thumb
	rec, _ := s.tracker.Get(r.Label)
	s.view.ShowPhoto(rec, r.Thumb)
}

// Load replaces the loaded photos with those found at path, a directory or a single photo.
// Pending positions are saved or discarded according to choose, or the prompter if nil.
func (s *Session) Load(path string, choose ChooseFunc) error {
	var err error
	if derr := s.do(func() { err = s.load(path, choose) }); derr != nil {
		return derr
	}
	return err
}

func (s *Session) load(path string, choose ChooseFunc) error {
	if s.results != nil {
		return geotag.ErrScanInProgress
	}

	if err := s.settle("Save positions to photos?", choose); err != nil {
		return err
	}

	ch, err := s.scanner.Scan(s.ctx, path)
	if err != nil {
		return err
	}
	s.clear()

	s.dir = filepath.Clean(path)
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		s.dir = filepath.Dir(path)
	}
	s.results = ch
	s.scanDone = make(chan struct{})
	s.view.Status(fmt.Sprintf("Loading photos from %s ...", path))
	return nil
}

// settle asks what to do with pending positions, if there are any.
func (s *Session) settle(question string, choose ChooseFunc) error {
	if !s.tracker.HasChanges() {
		return nil
	}
	if choose == nil {
		choose = s.prompt.Choose
	}

	switch choose(question) {
	case Save:
		if _, err := s.save(); err != nil {
			return err
		}
	case Discard:
		klog.Infof("discarding changes to %v", s.tracker.Dirty())
	default:
		return ErrCancelled
	}
	return nil
}

// WaitScan blocks until the current scan, if any, has been fully loaded.
func (s *Session) WaitScan(ctx context.Context) error {
	var done chan struct{}
	if err := s.do(func() { done = s.scanDone }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
}

// Scanning reports whether photos are still being loaded.
func (s *Session) Scanning() bool {
	var busy bool
	if err := s.do(func() { busy = s.results != nil }); err != nil {
		return false
	}
	return busy
}

// Select sets the selected photos and shows the positions they have.
func (s *Session) Select(labels []string) error {
	var err error
	if derr := s.do(func() { err = s.selectLabels(labels) }); derr != nil {
		return derr
	}
	return err
}

func (s *Session) selectLabels(labels []string) error {
	var missing []string
	for _, l := range labels {
		if _, ok := s.tracker.Get(l); !ok {
			missing = append(missing, l)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("select %s: %w", strings.Join(missing, ", "), geotag.ErrUnknownLabel)
	}

	s.selected = append([]string(nil), labels...)
	s.view.RemoveMarkers()
	for _, l := range s.selected {
		r, _ := s.tracker.Get(l)
		if r.Coord == nil {
			continue
		}
		s.view.AddMarker(l, *r.Coord)
		s.view.SetView(*r.Coord, s.zoom)
	}
	return nil
}

// Selected returns the selected labels.
func (s *Session) Selected() []string {
	var ls []string
	_ = s.do(func() { ls = append([]string(nil), s.selected...) })
	return ls
}

// Click assigns the clicked position to the selected photos. Photos that already have
// a position are only changed if confirm agrees; a nil confirm asks the prompter.
func (s *Session) Click(lat, lon float64, confirm geotag.ConfirmFunc) ([]string, error) {
	var (
		applied []string
		err     error
	)
	if derr := s.do(func() { applied, err = s.click(lat, lon, confirm) }); derr != nil {
		return nil, derr
	}
	return applied, err
}

func (s *Session) click(lat, lon float64, confirm geotag.ConfirmFunc) ([]string, error) {
	c, err := geotag.NewCoordinate(lat, lon)
	if err != nil {
		return nil, err
	}
	s.view.Status(fmt.Sprintf("Position %.6f, %.6f", lat, lon))

	if confirm == nil {
		confirm = func(label string, cur geotag.Coordinate) bool {
			return s.prompt.Confirm(fmt.Sprintf("Replace current position of %s (%s)?", label, cur))
		}
	}

	applied, err := s.tracker.Apply(s.selected, c, confirm)
	for _, l := range applied {
		s.view.AddMarker(l, c)
		s.view.SetView(c, s.zoom)
		s.view.Status(fmt.Sprintf("Set picture position %.6f, %.6f", lat, lon))
	}
	return applied, err
}

// Zoom records the zoom level reported by the map.
func (s *Session) Zoom(z int) error {
	if z < 0 {
		return fmt.Errorf("zoom %d: must not be negative", z)
	}
	return s.do(func() {
		s.zoom = z
		s.view.Status(fmt.Sprintf("Zoom: %d", z))
	})
}

// Copy remembers the position of the single selected photo.
// It returns false when the selection is not exactly one photo with a position.
func (s *Session) Copy() (geotag.Coordinate, bool, error) {
	var (
		c  geotag.Coordinate
		ok bool
	)
	err := s.do(func() {
		if len(s.selected) != 1 {
			s.view.Status("Select exactly one photo to copy its position")
			return
		}
		c, ok = s.tracker.Copy(s.selected[0])
		if !ok {
			s.view.Status("Photo does not contain position")
			return
		}
		s.view.Status(fmt.Sprintf("Copied position %s", c))
	})
	return c, ok, err
}

// Paste assigns the copied position to the selected photos without asking.
func (s *Session) Paste() ([]string, error) {
	var (
		applied []string
		err     error
	)
	if derr := s.do(func() { applied, err = s.paste() }); derr != nil {
		return nil, derr
	}
	return applied, err
}

func (s *Session) paste() ([]string, error) {
	c, ok := s.tracker.Clipboard()
	if !ok {
		s.view.Status("No position in clipboard")
		return nil, geotag.ErrEmptyClipboard
	}

	if len(s.selected) > 0 {
		s.view.RemoveMarkers()
	}

	applied, err := s.tracker.Paste(s.selected)
	for _, l := range applied {
		s.view.AddMarker(l, c)
		s.view.SetView(c, s.zoom)
		s.view.Status(fmt.Sprintf("Set photo position %.6f, %.6f", c.Lat, c.Lon))
	}
	return applied, err
}

// Save writes every pending position to its photo. All photos are attempted;
// the ones that fail stay pending and are listed in the returned error.
func (s *Session) Save() (SaveReport, error) {
	var (
		rep SaveReport
		err error
	)
	if derr := s.do(func() { rep, err = s.save() }); derr != nil {
		return rep, derr
	}
	return rep, err
}

func (s *Session) save() (SaveReport, error) {
	rep := SaveReport{Saved: []string{}}
	var (
		failed []geotag.Change
		merr   *multierror.Error
	)

	for _, c := range s.tracker.Commit() {
		if err := s.md.WriteGPS(c.Path, c.Coord.Lat, c.Coord.Lon); err != nil {
			klog.Errorf("save %s: %v", c.Path, err)
			if rep.Failed == nil {
				rep.Failed = map[string]string{}
			}
			rep.Failed[c.Label] = err.Error()
			failed = append(failed, c)
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", c.Label, err))
			continue
		}
		rep.Saved = append(rep.Saved, c.Label)
	}

	s.tracker.Restore(failed)
	if len(failed) > 0 {
		s.view.Status(fmt.Sprintf("Saved %d positions, %d failed", len(rep.Saved), len(failed)))
	} else {
		s.view.Status("Positions saved in photos")
	}
	return rep, merr.ErrorOrNil()
}

// Clear forgets the loaded photos. The copied position is kept.
func (s *Session) Clear() error {
	return s.do(s.clear)
}

func (s *Session) clear() {
	s.tracker.Clear()
	s.selected = nil
	s.thumbs = map[string]string{}
	s.view.RemoveMarkers()
	s.view.ClearPhotos()
}

// Quit reports whether the program may exit, settling pending positions first.
func (s *Session) Quit(choose ChooseFunc) (bool, error) {
	var err error
	if derr := s.do(func() { err = s.settle("Save positions to photos?", choose) }); derr != nil {
		return true, nil
	}
	if errors.Is(err, ErrCancelled) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Photos returns the loaded photos ordered by label.
func (s *Session) Photos() []geotag.Record {
	var rs []geotag.Record
	_ = s.do(func() { rs = s.tracker.Records() })
	return rs
}

// Photo returns the loaded photo with the given label.
func (s *Session) Photo(label string) (geotag.Record, bool) {
	var (
		r  geotag.Record
		ok bool
	)
	_ = s.do(func() { r, ok = s.tracker.Get(label) })
	return r, ok
}

// Thumb returns the thumbnail path for label, if one was made.
func (s *Session) Thumb(label string) (string, bool) {
	var t string
	_ = s.do(func() { t = s.thumbs[label] })
	return t, t != ""
}

// Pending returns the labels with unsaved positions.
func (s *Session) Pending() []string {
	var ls []string
	_ = s.do(func() { ls = s.tracker.Dirty() })
	return ls
}

// Config returns the configuration the session was started with.
func (s *Session) Config() geotag.Config {
	return s.cfg
}

// Watch reloads photos that appear or change in dir while it is the loaded directory.
// Photos with unsaved positions are left alone.
func (s *Session) Watch(ctx context.Context, dir string) error {
	return geotag.Watch(ctx, dir, func(path string) {
		r := s.scanner.Read(path)
		err := s.do(func() {
			if s.dir != filepath.Dir(path) {
				return
			}
			if old, ok := s.tracker.Get(r.Label); ok && old.Dirty {
				klog.V(1).Infof("%s has unsaved changes, not reloading", r.Label)
				return
			}
			klog.Infof("reloading %s", path)
			s.add(r)
		})
		if err != nil {
			klog.V(1).Infof("dropping %s: %v", path, err)
		}
	})
}

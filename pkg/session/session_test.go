package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tstromberg/geotagger/pkg/geotag"
)

type write struct {
	Path string
	Lat  float64
	Lon  float64
}

// fakeMetadata serves GPS tags from memory and records writes.
type fakeMetadata struct {
	mu     sync.Mutex
	tags   map[string]*geotag.GPSTags
	fail   map[string]error
	writes []write
}

func (f *fakeMetadata) ReadGPS(path string) (*geotag.GPSTags, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tags[filepath.Base(path)], nil
}

func (f *fakeMetadata) WriteGPS(path string, lat, lon float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[filepath.Base(path)]; err != nil {
		return err
	}
	f.writes = append(f.writes, write{Path: path, Lat: lat, Lon: lon})
	return nil
}

func (f *fakeMetadata) written() []write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]write(nil), f.writes...)
}

// prompter answers with fixed values and counts questions.
type prompter struct {
	mu       sync.Mutex
	confirm  bool
	choice   Choice
	asked    int
	question string
}

func (p *prompter) Confirm(q string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked++
	p.question = q
	return p.confirm
}

func (p *prompter) Choose(q string) Choice {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked++
	p.question = q
	return p.choice
}

type fixture struct {
	s   *Session
	md  *fakeMetadata
	p   *prompter
	rec *Recorder
	dir string
}

// start runs a session over a directory holding a.jpg (45.03, 7.66) and b.jpg (no position).
func start(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	for _, n := range []string{"a.jpg", "b.jpg"} {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	f := &fixture{
		md: &fakeMetadata{
			tags: map[string]*geotag.GPSTags{
				"a.jpg": {LatRef: "N", LatDMS: "45/1 1/1 48/1", LonRef: "E", LonDMS: "7/1 39/1 36/1"},
			},
			fail: map[string]error{},
		},
		p:   &prompter{},
		rec: NewRecorder(),
		dir: dir,
	}
	f.s = New(geotag.DefaultConfig(), f.md, f.rec, f.p)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errc; err != nil {
			t.Errorf("Run: %v", err)
		}
	})

	f.load(t, dir)
	return f
}

func (f *fixture) load(t *testing.T, path string) {
	t.Helper()
	if err := f.s.Load(path, nil); err != nil {
		t.Fatalf("Load(%s): %v", path, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.s.WaitScan(ctx); err != nil {
		t.Fatalf("WaitScan: %v", err)
	}
}

func (f *fixture) record(t *testing.T, label string) geotag.Record {
	t.Helper()
	r, ok := f.s.Photo(label)
	if !ok {
		t.Fatalf("no photo %q", label)
	}
	return r
}

func approx(c *geotag.Coordinate, lat, lon float64) bool {
	const eps = 1e-9
	return c != nil && c.Lat-lat < eps && lat-c.Lat < eps && c.Lon-lon < eps && lon-c.Lon < eps
}

func TestScanLoadsRecords(t *testing.T) {
	f := start(t)

	rs := f.s.Photos()
	if len(rs) != 2 {
		t.Fatalf("Photos() = %+v, want 2 photos", rs)
	}
	a, b := rs[0], rs[1]
	if a.Label != "a" || a.Dirty || !approx(a.Coord, 45.03, 7.66) || a.Coord.Alt != 0 {
		t.Errorf("a = %+v", a)
	}
	if b.Label != "b" || b.Dirty || b.Coord != nil || b.Path != filepath.Join(f.dir, "b.jpg") {
		t.Errorf("b = %+v", b)
	}
	if f.s.Scanning() {
		t.Errorf("Scanning() = true after WaitScan")
	}
	if diff := cmp.Diff([]string{"a", "b"}, f.rec.Snapshot().Photos); diff != "" {
		t.Errorf("view photos mismatch (-want +got):\n%s", diff)
	}
}

func TestClickThenSave(t *testing.T) {
	f := start(t)

	if err := f.s.Select([]string{"b"}); err != nil {
		t.Fatalf("Select: %v", err)
	}
	applied, err := f.s.Click(46.0, 8.0, nil)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if diff := cmp.Diff([]string{"b"}, applied); diff != "" {
		t.Errorf("Click() mismatch (-want +got):\n%s", diff)
	}
	if f.p.asked != 0 {
		t.Errorf("asked %d questions for a photo without position", f.p.asked)
	}

	b := f.record(t, "b")
	if !b.Dirty || *b.Coord != (geotag.Coordinate{Lat: 46, Lon: 8}) {
		t.Errorf("b = %+v", b)
	}

	snap := f.rec.Snapshot()
	want := []Marker{{Label: "b", Coord: geotag.Coordinate{Lat: 46, Lon: 8}}}
	if diff := cmp.Diff(want, snap.Markers); diff != "" {
		t.Errorf("markers mismatch (-want +got):\n%s", diff)
	}
	if snap.Center != (geotag.Coordinate{Lat: 46, Lon: 8}) || snap.Zoom != 12 {
		t.Errorf("view = %v zoom %d", snap.Center, snap.Zoom)
	}

	rep, err := f.s.Save()
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if diff := cmp.Diff(SaveReport{Saved: []string{"b"}}, rep); diff != "" {
		t.Errorf("Save() mismatch (-want +got):\n%s", diff)
	}
	wantWrites := []write{{Path: filepath.Join(f.dir, "b.jpg"), Lat: 46, Lon: 8}}
	if diff := cmp.Diff(wantWrites, f.md.written()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
	if p := f.s.Pending(); len(p) != 0 {
		t.Errorf("Pending() = %v after save", p)
	}
	if f.record(t, "b").Dirty {
		t.Errorf("b still dirty after save")
	}
}

func TestClickAsksBeforeReplacing(t *testing.T) {
	f := start(t)
	if err := f.s.Select([]string{"a"}); err != nil {
		t.Fatalf("Select: %v", err)
	}

	applied, err := f.s.Click(1, 2, nil)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if len(applied) != 0 || f.p.asked != 1 {
		t.Errorf("Click() = %v after %d questions", applied, f.p.asked)
	}
	if a := f.record(t, "a"); a.Dirty || !approx(a.Coord, 45.03, 7.66) {
		t.Errorf("declined click changed a: %+v", a)
	}

	f.p.confirm = true
	if applied, _ := f.s.Click(1, 2, nil); len(applied) != 1 {
		t.Errorf("confirmed Click() = %v", applied)
	}
	if a := f.record(t, "a"); !a.Dirty || *a.Coord != (geotag.Coordinate{Lat: 1, Lon: 2}) {
		t.Errorf("a = %+v", a)
	}

	// an explicit confirmation replaces the prompter
	if applied, _ := f.s.Click(3, 4, func(string, geotag.Coordinate) bool { return false }); len(applied) != 0 {
		t.Errorf("Click(decline) = %v", applied)
	}
}

func TestClickOutOfRange(t *testing.T) {
	f := start(t)
	f.s.Select([]string{"b"})
	if _, err := f.s.Click(100, 0, nil); !errors.Is(err, geotag.ErrOutOfRange) {
		t.Errorf("Click(100, 0) = %v, want ErrOutOfRange", err)
	}
}

func TestSelectUnknown(t *testing.T) {
	f := start(t)
	if err := f.s.Select([]string{"a", "zz"}); !errors.Is(err, geotag.ErrUnknownLabel) {
		t.Errorf("Select(zz) = %v, want ErrUnknownLabel", err)
	}
}

func TestSelectShowsPosition(t *testing.T) {
	f := start(t)
	if err := f.s.Select([]string{"a", "b"}); err != nil {
		t.Fatalf("Select: %v", err)
	}
	snap := f.rec.Snapshot()
	if len(snap.Markers) != 1 || snap.Markers[0].Label != "a" {
		t.Errorf("markers = %+v, want just a", snap.Markers)
	}
	if !approx(&snap.Center, 45.03, 7.66) {
		t.Errorf("center = %v", snap.Center)
	}
}

func TestCopyPaste(t *testing.T) {
	f := start(t)

	if _, err := f.s.Paste(); !errors.Is(err, geotag.ErrEmptyClipboard) {
		t.Errorf("Paste(empty) = %v, want ErrEmptyClipboard", err)
	}
	if got := f.rec.Snapshot().Status; got != "No position in clipboard" {
		t.Errorf("status = %q", got)
	}

	f.s.Select([]string{"b"})
	if _, ok, _ := f.s.Copy(); ok {
		t.Errorf("Copy() from a photo without position succeeded")
	}
	if got := f.rec.Snapshot().Status; got != "Photo does not contain position" {
		t.Errorf("status = %q", got)
	}

	f.s.Select([]string{"a", "b"})
	if _, ok, _ := f.s.Copy(); ok {
		t.Errorf("Copy() with two photos selected succeeded")
	}

	f.s.Select([]string{"a"})
	c, ok, err := f.s.Copy()
	if err != nil || !ok || !approx(&c, 45.03, 7.66) {
		t.Fatalf("Copy() = %v, %v, %v", c, ok, err)
	}

	f.s.Select([]string{"b"})
	applied, err := f.s.Paste()
	if err != nil {
		t.Fatalf("Paste: %v", err)
	}
	if diff := cmp.Diff([]string{"b"}, applied); diff != "" {
		t.Errorf("Paste() mismatch (-want +got):\n%s", diff)
	}
	if b := f.record(t, "b"); !b.Dirty || !approx(b.Coord, 45.03, 7.66) {
		t.Errorf("b = %+v", b)
	}
	if f.p.asked != 0 {
		t.Errorf("paste asked %d questions", f.p.asked)
	}
}

func TestSaveIsBestEffort(t *testing.T) {
	f := start(t)
	f.md.fail["a.jpg"] = errors.New("read-only file system")

	f.p.confirm = true
	f.s.Select([]string{"a", "b"})
	if _, err := f.s.Click(10, 20, nil); err != nil {
		t.Fatalf("Click: %v", err)
	}

	rep, err := f.s.Save()
	if err == nil {
		t.Fatalf("Save() succeeded despite a failing write")
	}
	want := SaveReport{Saved: []string{"b"}, Failed: map[string]string{"a": "read-only file system"}}
	if diff := cmp.Diff(want, rep); diff != "" {
		t.Errorf("Save() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a"}, f.s.Pending()); diff != "" {
		t.Errorf("Pending() mismatch (-want +got):\n%s", diff)
	}

	delete(f.md.fail, "a.jpg")
	if _, err := f.s.Save(); err != nil {
		t.Errorf("retry Save: %v", err)
	}
	if p := f.s.Pending(); len(p) != 0 {
		t.Errorf("Pending() = %v after retry", p)
	}
}

func TestLoadWithPendingChanges(t *testing.T) {
	f := start(t)
	f.s.Select([]string{"b"})
	f.s.Click(1, 1, nil)

	f.p.choice = Cancel
	if err := f.s.Load(f.dir, nil); !errors.Is(err, ErrCancelled) {
		t.Fatalf("Load(cancel) = %v, want ErrCancelled", err)
	}
	if diff := cmp.Diff([]string{"b"}, f.s.Pending()); diff != "" {
		t.Errorf("cancelled load lost changes (-want +got):\n%s", diff)
	}

	f.p.choice = Discard
	f.load(t, f.dir)
	if p := f.s.Pending(); len(p) != 0 {
		t.Errorf("Pending() = %v after discard", p)
	}
	if len(f.md.written()) != 0 {
		t.Errorf("discard wrote %v", f.md.written())
	}
	if b := f.record(t, "b"); b.Coord != nil {
		t.Errorf("b = %+v after reload", b)
	}

	f.s.Select([]string{"b"})
	f.s.Click(2, 2, nil)
	f.p.choice = Save
	f.load(t, filepath.Join(f.dir, "a.jpg"))
	if len(f.md.written()) != 1 {
		t.Errorf("save-then-load wrote %v", f.md.written())
	}
	if rs := f.s.Photos(); len(rs) != 1 || rs[0].Label != "a" {
		t.Errorf("Photos() after loading one file = %+v", rs)
	}
}

func TestQuit(t *testing.T) {
	f := start(t)

	if ok, err := f.s.Quit(nil); !ok || err != nil {
		t.Errorf("Quit() with nothing pending = %v, %v", ok, err)
	}
	if f.p.asked != 0 {
		t.Errorf("Quit() asked with nothing pending")
	}

	f.s.Select([]string{"b"})
	f.s.Click(1, 1, nil)

	if ok, _ := f.s.Quit(func(string) Choice { return Cancel }); ok {
		t.Errorf("Quit(cancel) = true")
	}

	f.md.fail["b.jpg"] = errors.New("permission denied")
	if ok, err := f.s.Quit(func(string) Choice { return Save }); ok || err == nil {
		t.Errorf("Quit(save) with a failing write = %v, %v", ok, err)
	}

	delete(f.md.fail, "b.jpg")
	if ok, err := f.s.Quit(func(string) Choice { return Save }); !ok || err != nil {
		t.Errorf("Quit(save) = %v, %v", ok, err)
	}
	if len(f.md.written()) != 1 {
		t.Errorf("writes = %v", f.md.written())
	}
}

func TestQuitDiscard(t *testing.T) {
	f := start(t)
	f.s.Select([]string{"b"})
	f.s.Click(1, 1, nil)
	f.p.choice = Discard

	if ok, err := f.s.Quit(nil); !ok || err != nil {
		t.Errorf("Quit(discard) = %v, %v", ok, err)
	}
	if len(f.md.written()) != 0 {
		t.Errorf("discard wrote %v", f.md.written())
	}
}

func TestClearKeepsClipboard(t *testing.T) {
	f := start(t)
	f.s.Select([]string{"a"})
	f.s.Copy()

	if err := f.s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if rs := f.s.Photos(); len(rs) != 0 {
		t.Errorf("Photos() after Clear = %v", rs)
	}
	if sel := f.s.Selected(); len(sel) != 0 {
		t.Errorf("Selected() after Clear = %v", sel)
	}
	if snap := f.rec.Snapshot(); len(snap.Markers) != 0 || len(snap.Photos) != 0 {
		t.Errorf("view after Clear = %+v", snap)
	}

	f.load(t, f.dir)
	f.s.Select([]string{"b"})
	if applied, err := f.s.Paste(); err != nil || len(applied) != 1 {
		t.Errorf("Paste() after Clear = %v, %v", applied, err)
	}
}

func TestZoom(t *testing.T) {
	f := start(t)
	if err := f.s.Zoom(-1); err == nil {
		t.Errorf("Zoom(-1) succeeded")
	}
	if err := f.s.Zoom(15); err != nil {
		t.Fatalf("Zoom: %v", err)
	}
	f.s.Select([]string{"a"})
	if got := f.rec.Snapshot().Zoom; got != 15 {
		t.Errorf("zoom = %d, want 15", got)
	}
}

func TestStopped(t *testing.T) {
	s := New(geotag.DefaultConfig(), &fakeMetadata{}, NewRecorder(), &prompter{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if err := s.Select(nil); !errors.Is(err, ErrStopped) {
		t.Errorf("Select() after stop = %v, want ErrStopped", err)
	}
}

func TestLoadMissingPathKeepsPhotos(t *testing.T) {
	f := start(t)
	f.s.Select([]string{"a"})

	err := f.s.Load(filepath.Join(f.dir, "typo"), nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load(typo) = %v, want ErrNotExist", err)
	}
	if n := len(f.s.Photos()); n != 2 {
		t.Errorf("Photos() after failed load = %d photos, want 2", n)
	}
	if diff := cmp.Diff([]string{"a"}, f.s.Selected()); diff != "" {
		t.Errorf("selection mismatch (-want +got):\n%s", diff)
	}
	if snap := f.rec.Snapshot(); len(snap.Markers) != 1 || len(snap.Photos) != 2 {
		t.Errorf("view after failed load = %+v", snap)
	}
	if f.s.Scanning() {
		t.Errorf("Scanning() = true after failed load")
	}
}

package geotag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownLabel is returned when an operation names a photo that is not loaded.
	ErrUnknownLabel = errors.New("unknown photo")
	// ErrEmptyClipboard is returned by Paste when nothing has been copied.
	ErrEmptyClipboard = errors.New("no position in clipboard")
)

// Record is a loaded photo and its in-memory position.
type Record struct {
	Label string      `json:"label"`
	Path  string      `json:"path"`
	Coord *Coordinate `json:"coord,omitempty"`
	Dirty bool        `json:"dirty"`
}

// HasPosition reports whether the photo carries GPS data.
func (r Record) HasPosition() bool {
	return r.Coord != nil
}

// Change is a pending position write.
type Change struct {
	Label string
	Path  string
	Coord Coordinate
}

// ConfirmFunc is asked before an existing position is replaced.
type ConfirmFunc func(label string, current Coordinate) bool

// Tracker holds the loaded photos, their unsaved edits, and the copied position.
// It is not safe for concurrent use; a single owner drives it.
type Tracker struct {
	records   map[string]*Record
	dirty     map[string]bool
	clipboard *Coordinate
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		records: map[string]*Record{},
		dirty:   map[string]bool{},
	}
}

// Load inserts or replaces the record for label as unmodified.
func (t *Tracker) Load(label string, c *Coordinate, path string) {
	t.records[label] = &Record{Label: label, Path: path, Coord: copyCoord(c)}
	delete(t.dirty, label)
}

// Apply sets c on every named photo. Photos without a position are always updated;
// the rest only when confirm agrees. It returns the labels that changed.
func (t *Tracker) Apply(labels []string, c Coordinate, confirm ConfirmFunc) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var applied, missing []string
	for _, l := range labels {
		r, ok := t.records[l]
		if !ok {
			missing = append(missing, l)
			continue
		}
		if r.Coord != nil && (confirm == nil || !confirm(l, *r.Coord)) {
			continue
		}
		t.set(r, c)
		applied = append(applied, l)
	}

	return applied, missingErr(missing)
}

// Copy remembers the position of label. It returns false, leaving the clipboard alone,
// when the photo is unknown or has no position.
func (t *Tracker) Copy(label string) (Coordinate, bool) {
	r, ok := t.records[label]
	if !ok || r.Coord == nil {
		return Coordinate{}, false
	}
	t.clipboard = copyCoord(r.Coord)
	return *r.Coord, true
}

// Paste overwrites every named photo with the copied position, without confirmation.
func (t *Tracker) Paste(labels []string) ([]string, error) {
	if t.clipboard == nil {
		return nil, ErrEmptyClipboard
	}

	var applied, missing []string
	for _, l := range labels {
		r, ok := t.records[l]
		if !ok {
			missing = append(missing, l)
			continue
		}
		t.set(r, *t.clipboard)
		applied = append(applied, l)
	}
	return applied, missingErr(missing)
}

// Commit returns every modified photo, ordered by label, and forgets that they were modified.
func (t *Tracker) Commit() []Change {
	cs := make([]Change, 0, len(t.dirty))
	for l := range t.dirty {
		r := t.records[l]
		r.Dirty = false
		cs = append(cs, Change{Label: l, Path: r.Path, Coord: *r.Coord})
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].Label < cs[j].Label })
	t.dirty = map[string]bool{}
	return cs
}

// Restore marks changes that could not be persisted as modified again.
// Changes whose photo has since been cleared or edited are ignored.
func (t *Tracker) Restore(cs []Change) {
	for _, c := range cs {
		r, ok := t.records[c.Label]
		if !ok || r.Coord == nil || *r.Coord != c.Coord {
			continue
		}
		r.Dirty = true
		t.dirty[c.Label] = true
	}
}

// Clear forgets every photo. The clipboard is kept.
func (t *Tracker) Clear() {
	t.records = map[string]*Record{}
	t.dirty = map[string]bool{}
}

// Get returns a copy of the record for label.
func (t *Tracker) Get(label string) (Record, bool) {
	r, ok := t.records[label]
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

// Records returns copies of all records ordered by label.
func (t *Tracker) Records() []Record {
	rs := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		rs = append(rs, r.clone())
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Label < rs[j].Label })
	return rs
}

// Dirty returns the labels with unsaved positions, sorted.
func (t *Tracker) Dirty() []string {
	ls := make([]string, 0, len(t.dirty))
	for l := range t.dirty {
		ls = append(ls, l)
	}
	sort.Strings(ls)
	return ls
}

// HasChanges reports whether any position is unsaved.
func (t *Tracker) HasChanges() bool {
	return len(t.dirty) > 0
}

// Clipboard returns the copied position, if any.
func (t *Tracker) Clipboard() (Coordinate, bool) {
	if t.clipboard == nil {
		return Coordinate{}, false
	}
	return *t.clipboard, true
}

// Len returns the number of loaded photos.
func (t *Tracker) Len() int {
	return len(t.records)
}

func (t *Tracker) set(r *Record, c Coordinate) {
	c.Alt = 0
	r.Coord = &c
	r.Dirty = true
	t.dirty[r.Label] = true
}

func (r *Record) clone() Record {
	c := *r
	c.Coord = copyCoord(r.Coord)
	return c
}

func copyCoord(c *Coordinate) *Coordinate {
	if c == nil {
		return nil
	}
	cc := *c
	return &cc
}

func missingErr(ls []string) error {
	if len(ls) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %w", strings.Join(ls, ", "), ErrUnknownLabel)
}

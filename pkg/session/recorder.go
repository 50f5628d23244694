package session

import (
	"sort"
	"sync"

	"github.com/tstromberg/geotagger/pkg/geotag"
)

// Marker is a labelled pin on the map.
type Marker struct {
	Label string            `json:"label"`
	Coord geotag.Coordinate `json:"coord"`
}

// MapState is what a map surface should currently show.
type MapState struct {
	Markers []Marker          `json:"markers"`
	Center  geotag.Coordinate `json:"center"`
	Zoom    int               `json:"zoom"`
	Status  string            `json:"status"`
	Photos  []string          `json:"photos"`
}

// Recorder is a View that remembers the latest map state, for front-ends that poll.
type Recorder struct {
	mu      sync.Mutex
	markers map[string]geotag.Coordinate
	center  geotag.Coordinate
	zoom    int
	status  string
	photos  []string
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{markers: map[string]geotag.Coordinate{}}
}

func (r *Recorder) AddMarker(label string, c geotag.Coordinate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers[label] = c
}

func (r *Recorder) RemoveMarkers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers = map[string]geotag.Coordinate{}
}

func (r *Recorder) SetView(c geotag.Coordinate, zoom int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.center = c
	r.zoom = zoom
}

func (r *Recorder) ShowPhoto(rec geotag.Record, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.photos {
		if p == rec.Label {
			return
		}
	}
	r.photos = append(r.photos, rec.Label)
}

func (r *Recorder) ClearPhotos() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.photos = nil
}

func (r *Recorder) Status(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = msg
}

// Snapshot returns a copy of the current state with markers sorted by label.
func (r *Recorder) Snapshot() MapState {
	r.mu.Lock()
	defer r.mu.Unlock()

	ms := MapState{
		Markers: make([]Marker, 0, len(r.markers)),
		Center:  r.center,
		Zoom:    r.zoom,
		Status:  r.status,
		Photos:  append([]string{}, r.photos...),
	}
	for l, c := range r.markers {
		ms.Markers = append(ms.Markers, Marker{Label: l, Coord: c})
	}
	sort.Slice(ms.Markers, func(i, j int) bool { return ms.Markers[i].Label < ms.Markers[j].Label })
	return ms
}

// Answers is a Prompter with fixed answers, for front-ends that cannot ask.
type Answers struct {
	Confirmed bool
	Choice    Choice
}

func (a Answers) Confirm(string) bool  { return a.Confirmed }
func (a Answers) Choose(string) Choice { return a.Choice }

// Views fans every call out to several views.
type Views []View

func (vs Views) AddMarker(label string, c geotag.Coordinate) {
	for _, v := range vs {
		v.AddMarker(label, c)
	}
}

func (vs Views) RemoveMarkers() {
	for _, v := range vs {
		v.RemoveMarkers()
	}
}

func (vs Views) SetView(c geotag.Coordinate, zoom int) {
	for _, v := range vs {
		v.SetView(c, zoom)
	}
}

func (vs Views) ShowPhoto(r geotag.Record, thumb string) {
	for _, v := range vs {
		v.ShowPhoto(r, thumb)
	}
}

func (vs Views) ClearPhotos() {
	for _, v := range vs {
		v.ClearPhotos()
	}
}

func (vs Views) Status(msg string) {
	for _, v := range vs {
		v.Status(msg)
	}
}

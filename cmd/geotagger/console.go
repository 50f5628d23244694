package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tstromberg/geotagger/pkg/geotag"
	"github.com/tstromberg/geotagger/pkg/session"
)

const help = `commands:
  load <dir|file>     load photos, replacing the current list
  ls                  list photos (* = unsaved position)
  select <label>...   select photos
  click <lat> <lon>   set the position of the selected photos
  zoom <level>        set the map zoom
  copy                copy the position of the selected photo
  paste               paste the copied position onto the selected photos
  save                write unsaved positions to the photos
  clear               clear the photo list
  quit                exit`

// console is a line-oriented front-end: it is both the View and the Prompter.
type console struct {
	lines <-chan string
	done  <-chan struct{}
	out   io.Writer
}

func newConsole(ctx context.Context, in io.Reader, out io.Writer) *console {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return &console{lines: lines, done: ctx.Done(), out: out}
}

// readLine returns the next input line, or false on EOF or shutdown.
func (c *console) readLine() (string, bool) {
	select {
	case l, ok := <-c.lines:
		return strings.TrimSpace(l), ok
	case <-c.done:
		return "", false
	}
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *console) AddMarker(label string, co geotag.Coordinate) {
	c.printf("map: marker %s at %s", label, co)
}

func (c *console) RemoveMarkers() {}

func (c *console) SetView(co geotag.Coordinate, zoom int) {
	c.printf("map: view %s zoom %d", co, zoom)
}

func (c *console) ShowPhoto(r geotag.Record, _ string) {
	c.printf("%s", describe(r))
}

func (c *console) ClearPhotos() {}

func (c *console) Status(msg string) {
	c.printf("-- %s", msg)
}

func (c *console) Confirm(q string) bool {
	fmt.Fprintf(c.out, "%s [y/N] ", q)
	l, _ := c.readLine()
	l = strings.ToLower(l)
	return l == "y" || l == "yes"
}

func (c *console) Choose(q string) session.Choice {
	fmt.Fprintf(c.out, "%s [s]ave/[d]iscard/[c]ancel ", q)
	l, _ := c.readLine()
	switch strings.ToLower(l) {
	case "s", "save", "y", "yes":
		return session.Save
	case "d", "discard", "n", "no":
		return session.Discard
	default:
		return session.Cancel
	}
}

func describe(r geotag.Record) string {
	mark := " "
	if r.Dirty {
		mark = "*"
	}
	pos := "no position"
	if r.Coord != nil {
		pos = r.Coord.String()
	}
	return fmt.Sprintf("%s %-24s %s", mark, r.Label, pos)
}

// repl reads commands until the user quits, input ends, or ctx is done.
// It returns false if the user did not ask to quit.
func (c *console) repl(s *session.Session) bool {
	c.printf("%s", help)
	for {
		fmt.Fprint(c.out, "> ")
		l, ok := c.readLine()
		if !ok {
			return false
		}

		fields := strings.Fields(l)
		if len(fields) == 0 {
			continue
		}

		quit, err := c.run(s, fields[0], fields[1:])
		if err != nil {
			c.printf("error: %v", err)
		}
		if quit {
			return true
		}
	}
}

// run executes one command and reports whether the console should exit.
func (c *console) run(s *session.Session, cmd string, args []string) (bool, error) {
	switch cmd {
	case "help", "?":
		c.printf("%s", help)
	case "load":
		if len(args) != 1 {
			return false, errors.New("usage: load <dir|file>")
		}
		return false, s.Load(args[0], nil)
	case "ls":
		for _, r := range s.Photos() {
			c.printf("%s", describe(r))
		}
	case "select":
		return false, s.Select(args)
	case "click":
		if len(args) != 2 {
			return false, errors.New("usage: click <lat> <lon>")
		}
		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return false, fmt.Errorf("latitude: %w", err)
		}
		lon, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return false, fmt.Errorf("longitude: %w", err)
		}
		_, err = s.Click(lat, lon, nil)
		return false, err
	case "zoom":
		if len(args) != 1 {
			return false, errors.New("usage: zoom <level>")
		}
		z, err := strconv.Atoi(args[0])
		if err != nil {
			return false, fmt.Errorf("zoom: %w", err)
		}
		return false, s.Zoom(z)
	case "copy":
		_, _, err := s.Copy()
		return false, err
	case "paste":
		_, err := s.Paste()
		if errors.Is(err, geotag.ErrEmptyClipboard) {
			return false, nil
		}
		return false, err
	case "save":
		_, err := s.Save()
		return false, err
	case "clear":
		return false, s.Clear()
	case "quit", "exit":
		return s.Quit(nil)
	default:
		return false, fmt.Errorf("unknown command %q, try help", cmd)
	}
	return false, nil
}

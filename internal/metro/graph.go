// Package metro models the two-line route graph and the fare and travel-time
// rules computed over it.
package metro

import (
	"errors"
	"fmt"
	"strings"
)

const (
	minutesPerStop     = 2.5
	interchangeMinutes = 7.0
	transferSurcharge  = 5
)

// ErrStationNotFound is returned when a station query does not resolve on
// either line.
var ErrStationNotFound = errors.New("station not found")

// Line is an ordered sequence of stations. Order defines stop-count distance.
type Line struct {
	Name     string
	Stations []string
}

// Graph is an immutable pair of lines sharing exactly one interchange station.
type Graph struct {
	lines       [2]Line
	interchange string
	pivot       [2]int // interchange index on each line
}

// Journey is a resolved trip between two stations.
type Journey struct {
	From     string
	To       string
	FromLine string
	ToLine   string
	Via      string // interchange, set for transfer trips
	Stops    int
	Transfer bool
	Fare     int
	Minutes  float64
}

// NewGraph validates that the two lines share exactly one station and that
// it is the named interchange.
func NewGraph(a, b Line, interchange string) (*Graph, error) {
	if len(a.Stations) == 0 || len(b.Stations) == 0 {
		return nil, errors.New("metro: lines must not be empty")
	}
	shared := ""
	count := 0
	for _, s := range a.Stations {
		if indexOf(b.Stations, s) >= 0 {
			shared = s
			count++
		}
	}
	if count != 1 {
		return nil, fmt.Errorf("metro: lines %q and %q share %d stations, want exactly 1", a.Name, b.Name, count)
	}
	if shared != interchange {
		return nil, fmt.Errorf("metro: shared station %q is not the interchange %q", shared, interchange)
	}

	g := &Graph{
		lines:       [2]Line{cloneLine(a), cloneLine(b)},
		interchange: interchange,
	}
	g.pivot[0] = indexOf(a.Stations, interchange)
	g.pivot[1] = indexOf(b.Stations, interchange)
	return g, nil
}

// Lines returns copies of both lines in declaration order.
func (g *Graph) Lines() []Line {
	return []Line{cloneLine(g.lines[0]), cloneLine(g.lines[1])}
}

// Interchange returns the transfer station.
func (g *Graph) Interchange() string { return g.interchange }

// Distance returns the stop count between two station queries and whether the
// trip changes lines. Same-line pairs are tried on the first line, then the
// second; otherwise each endpoint is measured to the interchange on its own line.
func (g *Graph) Distance(from, to string) (int, bool, error) {
	var fromIdx, toIdx [2]int
	for i := range g.lines {
		fromIdx[i] = g.lookup(i, from)
		toIdx[i] = g.lookup(i, to)
	}

	for i := range g.lines {
		if fromIdx[i] >= 0 && toIdx[i] >= 0 {
			return abs(toIdx[i] - fromIdx[i]), false, nil
		}
	}

	fromLine := firstFound(fromIdx)
	if fromLine < 0 {
		return 0, false, fmt.Errorf("metro: %w: %q", ErrStationNotFound, from)
	}
	toLine := firstFound(toIdx)
	if toLine < 0 {
		return 0, false, fmt.Errorf("metro: %w: %q", ErrStationNotFound, to)
	}

	stops := abs(g.pivot[fromLine]-fromIdx[fromLine]) + abs(g.pivot[toLine]-toIdx[toLine])
	return stops, true, nil
}

// Journey resolves both endpoints and prices the trip.
func (g *Graph) Journey(from, to string) (Journey, error) {
	stops, transfer, err := g.Distance(from, to)
	if err != nil {
		return Journey{}, err
	}

	j := Journey{
		Stops:    stops,
		Transfer: transfer,
		Fare:     Fare(stops, transfer),
		Minutes:  Duration(stops, transfer),
	}
	j.From, j.FromLine = g.resolve(from, to, transfer)
	j.To, j.ToLine = g.resolve(to, from, transfer)
	if transfer {
		j.Via = g.interchange
	}
	return j, nil
}

// resolve names the station a query matched, preferring the line both
// endpoints share when the trip is direct.
func (g *Graph) resolve(query, other string, transfer bool) (string, string) {
	for i, line := range g.lines {
		idx := g.lookup(i, query)
		if idx < 0 {
			continue
		}
		if !transfer && g.lookup(i, other) < 0 {
			continue
		}
		return line.Stations[idx], line.Name
	}
	return query, ""
}

// lookup returns the index of the first station on line i whose name contains
// the query, case-insensitively, or -1.
func (g *Graph) lookup(i int, query string) int {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return -1
	}
	for idx, s := range g.lines[i].Stations {
		if strings.Contains(strings.ToLower(s), q) {
			return idx
		}
	}
	return -1
}

// Fare applies the tiered flat fare plus the transfer surcharge.
func Fare(stops int, transfer bool) int {
	var fare int
	switch {
	case stops <= 3:
		fare = 15
	case stops <= 7:
		fare = 25
	default:
		fare = 35
	}
	if transfer {
		fare += transferSurcharge
	}
	return fare
}

// Duration is the travel time in minutes.
func Duration(stops int, transfer bool) float64 {
	minutes := float64(stops) * minutesPerStop
	if transfer {
		minutes += interchangeMinutes
	}
	return minutes
}

func cloneLine(l Line) Line {
	return Line{Name: l.Name, Stations: append([]string(nil), l.Stations...)}
}

func indexOf(stations []string, name string) int {
	for i, s := range stations {
		if s == name {
			return i
		}
	}
	return -1
}

func firstFound(idx [2]int) int {
	for i, v := range idx {
		if v >= 0 {
			return i
		}
	}
	return -1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

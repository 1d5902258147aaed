package metro

import (
	"fmt"
	"strings"
)

const civilCourt = "Civil Court (District Court)"

// PurpleLine runs PCMC to Swargate.
var PurpleLine = Line{
	Name: "Purple Line",
	Stations: []string{
		"PCMC", "Sant Tukaram Nagar", "Bhosari", "Kasarwadi", "Phugewadi",
		"Dapodi", "Bopodi", "Khadki", "Shivaji Nagar", civilCourt,
		"Pune Railway Station", "Budhwar Peth", "Mandai", "Swargate",
	},
}

// AquaLine runs Vanaz to Ramwadi.
var AquaLine = Line{
	Name: "Aqua Line",
	Stations: []string{
		"Vanaz", "Anand Nagar", "Ideal Colony", "Nal Stop", "Garware College",
		"Deccan Gymkhana", "Chhatrapati Sambhaji Udyan", "PMC", civilCourt,
		"Mangalwar Peth", "Ruby Hall Clinic", "Bund Garden", "Yerawada",
		"Kalyani Nagar", "Ramwadi",
	},
}

// Pune returns the Pune Metro graph. It panics only if the static line data
// is inconsistent.
func Pune() *Graph {
	g, err := NewGraph(PurpleLine, AquaLine, civilCourt)
	if err != nil {
		panic(err)
	}
	return g
}

// Describe renders a numbered station reference for both lines.
func (g *Graph) Describe() string {
	var b strings.Builder
	for _, line := range g.lines {
		fmt.Fprintf(&b, "%s (%s to %s, %d stations):\n", line.Name,
			line.Stations[0], line.Stations[len(line.Stations)-1], len(line.Stations))
		parts := make([]string, len(line.Stations))
		for i, s := range line.Stations {
			parts[i] = fmt.Sprintf("%d. %s", i+1, s)
		}
		b.WriteString(strings.Join(parts, ", "))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Interchange: %s", g.interchange)
	return b.String()
}

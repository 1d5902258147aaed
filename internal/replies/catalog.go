// Package replies holds the canned message catalog.
package replies

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the set of static replies. Templates use {message}, {topic}
// and {body} placeholders.
type Catalog struct {
	Welcome        string   `yaml:"welcome"`
	WelcomeOptions []string `yaml:"welcome_options"`
	Menu           string   `yaml:"menu"`
	MenuOptions    []string `yaml:"menu_options"`
	Routes         string   `yaml:"routes"`
	RouteDetail    string   `yaml:"route_detail"`
	Fares          string   `yaml:"fares"`
	FareDetail     string   `yaml:"fare_detail"`
	FareBetweenTpl string   `yaml:"fare_between"`
	Schedule       string   `yaml:"schedule"`
	ScheduleDetail string   `yaml:"schedule_detail"`
	Festival       string   `yaml:"festival"`
	ContextualTpl  string   `yaml:"contextual"`
	GenericTpl     string   `yaml:"generic"`
}

// Default parses the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse decodes a YAML catalog and checks every reply is present.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("replies: parse: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	required := map[string]string{
		"welcome":         c.Welcome,
		"menu":            c.Menu,
		"routes":          c.Routes,
		"route_detail":    c.RouteDetail,
		"fares":           c.Fares,
		"fare_detail":     c.FareDetail,
		"fare_between":    c.FareBetweenTpl,
		"schedule":        c.Schedule,
		"schedule_detail": c.ScheduleDetail,
		"festival":        c.Festival,
		"contextual":      c.ContextualTpl,
		"generic":         c.GenericTpl,
	}
	var missing []string
	for key, v := range required {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("replies: missing templates: %s", strings.Join(missing, ", "))
	}
	if len(c.WelcomeOptions) == 0 || len(c.MenuOptions) == 0 {
		return errors.New("replies: welcome_options and menu_options must not be empty")
	}
	return nil
}

// FareBetween is the fare-tier reply for a question naming two stations.
func (c *Catalog) FareBetween(message string) string {
	return fill(c.FareBetweenTpl, "{message}", message)
}

// Contextual prefixes a detail body with the query it answers.
func (c *Catalog) Contextual(message, topic, body string) string {
	return fill(c.ContextualTpl, "{message}", message, "{topic}", topic, "{body}", body)
}

// Generic is the last-resort reply echoing the question.
func (c *Catalog) Generic(message string) string {
	return fill(c.GenericTpl, "{message}", message)
}

func fill(tpl string, pairs ...string) string {
	return strings.NewReplacer(pairs...).Replace(tpl)
}

package render

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed styles.yaml
var defaultStyles []byte

// StyleCatalog maps a series' visual style to the prompt text sent to the renderer.
type StyleCatalog struct {
	Default string            `yaml:"default"`
	Styles  map[string]string `yaml:"styles"`
}

// LoadStyleCatalog reads the catalog from path, or the built-in one when path is empty.
func LoadStyleCatalog(path string) (*StyleCatalog, error) {
	data := defaultStyles
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read style catalog: %w", err)
		}
	}
	return ParseStyleCatalog(data)
}

// ParseStyleCatalog decodes a YAML catalog and checks its default exists.
func ParseStyleCatalog(data []byte) (*StyleCatalog, error) {
	var c StyleCatalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("invalid style catalog: %w", err)
	}
	if len(c.Styles) == 0 {
		return nil, fmt.Errorf("style catalog has no styles")
	}
	if _, ok := c.Styles[c.Default]; !ok {
		return nil, fmt.Errorf("style catalog default %q is not a defined style", c.Default)
	}
	return &c, nil
}

// Prompt returns the modifier for style, falling back to the default style.
func (c *StyleCatalog) Prompt(style string) string {
	if p, ok := c.Styles[style]; ok {
		return p
	}
	return c.Styles[c.Default]
}

// Names lists the known styles in order.
func (c *StyleCatalog) Names() []string {
	names := make([]string, 0, len(c.Styles))
	for name := range c.Styles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

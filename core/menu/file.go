// Package menu loads the option catalog from YAML and keeps it fresh while the bot runs.
package menu

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/m3rciful/menubot/core/dialog"
)

// File is the on-disk menu layout. Omitted header or footer fall back to the
// built-in texts; an explicit empty string drops them.
type File struct {
	Header  *string         `yaml:"header"`
	Footer  *string         `yaml:"footer"`
	Options []dialog.Option `yaml:"options"`
}

// Parse decodes a YAML menu into a validated catalog.
func Parse(data []byte) (*dialog.Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse menu: %w", err)
	}
	header := dialog.DefaultHeader
	if f.Header != nil {
		header = *f.Header
	}
	footer := dialog.DefaultFooter
	if f.Footer != nil {
		footer = *f.Footer
	}
	return dialog.NewCatalog(header, footer, f.Options)
}

// Load reads path and parses it. An empty path yields the built-in catalog.
func Load(path string) (*dialog.Catalog, error) {
	if path == "" {
		return dialog.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read menu file: %w", err)
	}
	return Parse(data)
}

// Marshal renders a catalog back into the YAML layout accepted by Parse.
func Marshal(c *dialog.Catalog) ([]byte, error) {
	header, footer := c.Header(), c.Footer()
	return yaml.Marshal(File{
		Header:  &header,
		Footer:  &footer,
		Options: c.Options(),
	})
}

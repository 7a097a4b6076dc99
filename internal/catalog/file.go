package catalog

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zeropass/zeropass/internal/config"
)

// catalogFile is the on-disk shape of an extension catalog.
type catalogFile struct {
	Templates []*Template `yaml:"templates"`
	Scenarios []*Scenario `yaml:"scenarios"`
}

// LoadFile replaces the catalog's file-sourced entries with the contents
// of path. Built-in entries are untouched; a file entry with a built-in's
// id is ignored. Invalid entries fail the whole load and the previous
// file entries are retained.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog file: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse catalog file %s: %w", path, err)
	}

	templates := make(map[string]*Template, len(f.Templates))
	for _, t := range f.Templates {
		if t.ID == "" {
			return fmt.Errorf("catalog file %s: template %q has no id", path, t.Name)
		}
		// Embedded rules have no id or owner until applied; validate a
		// stand-in the way Apply would produce it.
		probe := t.Rules.Clone()
		probe.ID = t.ID
		if probe.Name == "" {
			probe.Name = t.Name
		}
		if err := probe.Validate(); err != nil {
			return fmt.Errorf("catalog file %s: template %s: %w", path, t.ID, err)
		}
		templates[t.ID] = t
	}
	scenarios := make(map[string]*Scenario, len(f.Scenarios))
	for _, s := range f.Scenarios {
		if s.ID == "" {
			return fmt.Errorf("catalog file %s: scenario %q has no id", path, s.Name)
		}
		for _, r := range s.Requests {
			if r.Expected != "ALLOWED" && r.Expected != "BLOCKED" {
				return fmt.Errorf("catalog file %s: scenario %s: request %q expects %q, must be ALLOWED or BLOCKED",
					path, s.ID, r.Name, r.Expected)
			}
		}
		scenarios[s.ID] = s
	}

	c.mu.Lock()
	for id := range templates {
		if _, builtin := c.templates[id]; builtin {
			delete(templates, id)
		}
	}
	for id := range scenarios {
		if _, builtin := c.scenarios[id]; builtin {
			delete(scenarios, id)
		}
	}
	c.fileTemplates = templates
	c.fileScenarios = scenarios
	c.mu.Unlock()
	return nil
}

// Loader keeps a Catalog in sync with the configured catalog file across
// config reloads. It implements config.Reloadable.
type Loader struct {
	catalog *Catalog
	logger  *slog.Logger
}

// NewLoader creates a Loader and, if cfg names a catalog file, performs
// the initial load.
func NewLoader(c *Catalog, cfg *config.Config, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{catalog: c, logger: logger}
	if cfg.Catalog.File != "" {
		if err := c.LoadFile(cfg.Catalog.File); err != nil {
			return nil, err
		}
		logger.Info("catalog file loaded", "path", cfg.Catalog.File)
	}
	return l, nil
}

// OnConfigReload re-reads the catalog file named by the new config. An
// empty path clears the file-sourced entries.
func (l *Loader) OnConfigReload(newCfg *config.Config) error {
	if newCfg.Catalog.File == "" {
		l.catalog.mu.Lock()
		l.catalog.fileTemplates = map[string]*Template{}
		l.catalog.fileScenarios = map[string]*Scenario{}
		l.catalog.mu.Unlock()
		return nil
	}
	if err := l.catalog.LoadFile(newCfg.Catalog.File); err != nil {
		return err
	}
	l.logger.Info("catalog file reloaded", "path", newCfg.Catalog.File)
	return nil
}

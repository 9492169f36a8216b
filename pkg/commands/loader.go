package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"wabot/pkg/logger"
	"wabot/pkg/session"
)

// Descriptor is the on-disk form of one command module.
type Descriptor struct {
	Command string            `yaml:"command"`
	Handler string            `yaml:"handler"`
	Options map[string]string `yaml:"options"`
}

// aggregator is the optional index.yaml entry point listing all modules.
type aggregator struct {
	Commands []Descriptor `yaml:"commands"`
}

// LoadDir builds a command table from a directory of command modules.
// Resolution policy: when an index.yaml aggregator exists its mapping is
// used directly; otherwise individual module files are enumerated. A module
// that fails to load is skipped with a warning, never fatal.
func LoadDir(dir, defaultOwner string) (*Table, error) {
	log := logger.Get().Component("commands")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading commands dir: %w", err)
	}

	table := NewTable()
	if defaultOwner != "" {
		table.owner = session.NormalizeID(defaultOwner)
	}

	if data, err := os.ReadFile(filepath.Join(dir, "index.yaml")); err == nil {
		var agg aggregator
		if err := yaml.Unmarshal(data, &agg); err != nil {
			return nil, fmt.Errorf("parsing index.yaml: %w", err)
		}
		for _, desc := range agg.Commands {
			if err := registerDescriptor(table, desc); err != nil {
				log.WarnWith("skipping command module", "command", desc.Command, "error", err)
				continue
			}
			log.InfoWith("loaded command", "command", strings.ToLower(desc.Command))
		}
		return table, nil
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(dir, name)

		switch {
		case name == "index.yaml" || name == "index.yml":
			continue
		case strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml"):
			if err := loadDescriptorFile(table, path); err != nil {
				log.WarnWith("skipping command module", "file", name, "error", err)
				continue
			}
			log.InfoWith("loaded command module", "file", name)
		case strings.HasSuffix(name, ".txt"):
			// A bare reply file becomes a static command named after it.
			if err := loadBareFile(table, path); err != nil {
				log.WarnWith("skipping reply file", "file", name, "error", err)
				continue
			}
			log.InfoWith("loaded reply command", "file", name)
		}
	}

	return table, nil
}

func loadDescriptorFile(table *Table, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var desc Descriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return err
	}
	return registerDescriptor(table, desc)
}

func registerDescriptor(table *Table, desc Descriptor) error {
	if desc.Command == "" || desc.Handler == "" {
		return fmt.Errorf("module must declare both command and handler")
	}
	factory, ok := lookupFactory(desc.Handler)
	if !ok {
		return fmt.Errorf("handler %q is not registered", desc.Handler)
	}
	handler, err := factory(table, desc.Options)
	if err != nil {
		return err
	}
	return table.Add(&Command{
		Name:    desc.Command,
		Handler: handler,
	})
}

func loadBareFile(table *Table, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	reply := strings.TrimSpace(string(data))
	if reply == "" {
		return fmt.Errorf("reply file is empty")
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	handler, err := newStaticHandler(table, map[string]string{"reply": reply})
	if err != nil {
		return err
	}
	return table.Add(&Command{
		Name:    name,
		Handler: handler,
	})
}

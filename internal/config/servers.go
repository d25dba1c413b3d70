package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CategoryDefinition is one ranked list as configured for a server. A nil
// StopAtOrBelow falls back to the per-kind default.
type CategoryDefinition struct {
	Kind          string `yaml:"kind" validate:"required,oneof=loot nomad samurai bloodcrow war_realms berimond might"`
	ListType      int    `yaml:"list_type" validate:"gt=0"`
	Brackets      []int  `yaml:"brackets" validate:"omitempty,dive,gt=0"`
	StopAtOrBelow *int64 `yaml:"stop_at_or_below"`
}

// ServerDefinition maps a game server to its remote endpoint and database.
type ServerDefinition struct {
	Name       string               `yaml:"-"`
	BaseURL    string               `yaml:"base_url" validate:"required,url"`
	Header     string               `yaml:"header" validate:"required"`
	Zone       string               `yaml:"zone"`
	Database   string               `yaml:"database" validate:"required"`
	Categories []CategoryDefinition `yaml:"categories" validate:"required,min=1,dive"`
}

type serversFile struct {
	Servers map[string]ServerDefinition `yaml:"servers"`
}

// Catalog is the parsed server file keyed by lowercase server name.
type Catalog struct {
	servers map[string]ServerDefinition
}

func LoadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read servers file %s: %w", path, err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (Catalog, error) {
	var file serversFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Catalog{}, fmt.Errorf("decode servers file: %w", err)
	}
	if len(file.Servers) == 0 {
		return Catalog{}, fmt.Errorf("servers file defines no servers")
	}

	out := Catalog{servers: make(map[string]ServerDefinition, len(file.Servers))}
	for name, def := range file.Servers {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return Catalog{}, fmt.Errorf("server name is required")
		}
		def.Name = key
		if err := validate.Struct(def); err != nil {
			return Catalog{}, fmt.Errorf("validate server %s: %w", key, err)
		}
		if err := checkCategoryOrder(def.Categories); err != nil {
			return Catalog{}, fmt.Errorf("server %s: %w", key, err)
		}
		out.servers[key] = def
	}
	return out, nil
}

// checkCategoryOrder rejects duplicate kinds and requires might to be the
// last category, since its rows feed the snapshot.
func checkCategoryOrder(categories []CategoryDefinition) error {
	seen := make(map[string]struct{}, len(categories))
	for i, c := range categories {
		if _, dup := seen[c.Kind]; dup {
			return fmt.Errorf("duplicate category %s", c.Kind)
		}
		seen[c.Kind] = struct{}{}
		if c.Kind == "might" && i != len(categories)-1 {
			return fmt.Errorf("might must be the last category")
		}
	}
	if _, ok := seen["might"]; !ok {
		return fmt.Errorf("might category is required")
	}
	return nil
}

func (c Catalog) Lookup(name string) (ServerDefinition, bool) {
	def, ok := c.servers[strings.ToLower(strings.TrimSpace(name))]
	return def, ok
}

func (c Catalog) Names() []string {
	out := make([]string, 0, len(c.servers))
	for name := range c.servers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Servers returns every definition ordered by name.
func (c Catalog) Servers() []ServerDefinition {
	names := c.Names()
	out := make([]ServerDefinition, 0, len(names))
	for _, name := range names {
		out = append(out, c.servers[name])
	}
	return out
}

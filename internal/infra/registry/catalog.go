package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	domain "github.com/bryanwahyu/quorum-comply/internal/domain/frameworks"
)

// Catalog loads versioned framework requirement catalogs from a directory
// of YAML files. Catalogs are read-only reference data owned by the
// registry collaborator; the core only ever looks them up.
type Catalog struct {
	byID map[domain.FrameworkID]*domain.Framework
}

// LoadCatalog reads every *.yaml / *.yml file under dir. Each file holds
// one framework version.
func LoadCatalog(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}

	c := &Catalog{byID: make(map[domain.FrameworkID]*domain.Framework)}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		fw, err := loadFramework(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", e.Name(), err)
		}
		if _, dup := c.byID[fw.ID]; dup {
			return nil, fmt.Errorf("duplicate framework id %q in %s", fw.ID, e.Name())
		}
		c.byID[fw.ID] = fw
	}
	if len(c.byID) == 0 {
		return nil, fmt.Errorf("no framework catalogs found in %s", dir)
	}
	return c, nil
}

func loadFramework(path string) (*domain.Framework, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fw domain.Framework
	if err := yaml.Unmarshal(data, &fw); err != nil {
		return nil, err
	}
	if fw.ID == "" || fw.Version == "" {
		return nil, fmt.Errorf("framework id and version are required")
	}
	for _, req := range fw.Requirements {
		if req.Weight <= 0 || req.Weight > 1 {
			return nil, fmt.Errorf("requirement %s: weight %v outside (0,1]", req.ID, req.Weight)
		}
	}
	return &fw, nil
}

// Framework lookup by id
func (c *Catalog) Framework(id domain.FrameworkID) (*domain.Framework, error) {
	fw, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrFrameworkNotFound, id)
	}
	return fw, nil
}

// Frameworks returns every loaded catalog, sorted by id for stable output
func (c *Catalog) Frameworks() []*domain.Framework {
	out := make([]*domain.Framework, 0, len(c.byID))
	for _, fw := range c.byID {
		out = append(out, fw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

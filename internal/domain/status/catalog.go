package status

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownName = errors.New("unknown status name")
	ErrUnknownID   = errors.New("unknown status id")
)

// Catalog is the single place where status names and backend ids meet.
// It is immutable once built and safe for concurrent use.
type Catalog struct {
	byName map[Name]Status
	byID   map[int64]Name
}

// NewCatalog builds a catalog from the rows stored by the backend. Every
// canonical name must be present exactly once.
func NewCatalog(rows []*Status) (*Catalog, error) {
	c := &Catalog{
		byName: make(map[Name]Status, len(rows)),
		byID:   make(map[int64]Name, len(rows)),
	}
	for _, r := range rows {
		if !r.StatusName.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownName, r.StatusName)
		}
		if _, dup := c.byName[r.StatusName]; dup {
			return nil, fmt.Errorf("duplicate status name %q", r.StatusName)
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate status id %d", r.ID)
		}
		c.byName[r.StatusName] = *r
		c.byID[r.ID] = r.StatusName
	}
	for _, n := range Canonical {
		if _, ok := c.byName[n]; !ok {
			return nil, fmt.Errorf("status %q missing from catalog", n)
		}
	}
	return c, nil
}

// Resolve returns the backend id for a status name.
func (c *Catalog) Resolve(name Name) (int64, error) {
	s, ok := c.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	return s.ID, nil
}

// Name returns the status name for a backend id.
func (c *Catalog) Name(id int64) (Name, error) {
	n, ok := c.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return n, nil
}

// Label returns the display label, falling back to the name itself.
func (c *Catalog) Label(name Name) string {
	if s, ok := c.byName[name]; ok && s.Label != "" {
		return s.Label
	}
	return string(name)
}

// Ordered returns all statuses in canonical workflow order.
func (c *Catalog) Ordered() []Status {
	out := make([]Status, 0, len(Canonical))
	for _, n := range Canonical {
		out = append(out, c.byName[n])
	}
	return out
}

// WithLabels returns a copy of the catalog with the given labels replacing
// the backend ones. Unknown names are rejected.
func (c *Catalog) WithLabels(labels map[Name]string) (*Catalog, error) {
	out := &Catalog{
		byName: make(map[Name]Status, len(c.byName)),
		byID:   make(map[int64]Name, len(c.byID)),
	}
	for n, s := range c.byName {
		out.byName[n] = s
	}
	for id, n := range c.byID {
		out.byID[id] = n
	}
	for n, label := range labels {
		s, ok := out.byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownName, n)
		}
		s.Label = label
		out.byName[n] = s
	}
	return out, nil
}

// labelFile is the on-disk shape of STATUS_LABELS_FILE:
//
//	labels:
//	  WAITING: Menunggu
//	  ANAMNESA: Anamnesa
type labelFile struct {
	Labels map[Name]string `yaml:"labels"`
}

// ReadLabels parses a YAML label override file.
func ReadLabels(path string) (map[Name]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read status labels: %w", err)
	}
	var f labelFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse status labels %s: %w", path, err)
	}
	return f.Labels, nil
}

// Load fetches the statuses once and applies the optional label overrides.
func Load(ctx context.Context, repo Repository, labelsPath string) (*Catalog, error) {
	rows, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	c, err := NewCatalog(rows)
	if err != nil {
		return nil, err
	}
	if labelsPath == "" {
		return c, nil
	}
	labels, err := ReadLabels(labelsPath)
	if err != nil {
		return nil, err
	}
	return c.WithLabels(labels)
}

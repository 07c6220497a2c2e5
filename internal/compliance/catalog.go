package compliance

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Requirement is one entry of the required document catalog.
type Requirement struct {
	Type            DocumentType `yaml:"type" json:"type"`
	Label           string       `yaml:"label" json:"label"`
	ExpiryGraceDays int          `yaml:"expiryGraceDays" json:"expiryGraceDays"`
}

// Catalog is the ordered, immutable list of document types a company must hold
// approved to become an insured seller.
type Catalog struct {
	entries []Requirement
	index   map[DocumentType]int
}

// NewCatalog validates entries and returns an immutable catalog.
func NewCatalog(entries []Requirement) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog must contain at least one requirement")
	}
	c := &Catalog{
		entries: make([]Requirement, 0, len(entries)),
		index:   make(map[DocumentType]int, len(entries)),
	}
	for i, e := range entries {
		e.Type = DocumentType(strings.TrimSpace(string(e.Type)))
		e.Label = strings.TrimSpace(e.Label)
		if e.Type == "" {
			return nil, fmt.Errorf("catalog entry %d: type is required", i)
		}
		if e.Label == "" {
			e.Label = string(e.Type)
		}
		if e.ExpiryGraceDays < 0 {
			return nil, fmt.Errorf("catalog entry %q: expiryGraceDays must not be negative", e.Type)
		}
		if _, dup := c.index[e.Type]; dup {
			return nil, fmt.Errorf("catalog entry %q is duplicated", e.Type)
		}
		c.index[e.Type] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// DefaultCatalog is the built-in insured seller requirement set.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Requirement{
		{Type: "general_liability_insurance", Label: "General liability insurance", ExpiryGraceDays: 30},
		{Type: "workers_compensation_insurance", Label: "Workers' compensation insurance", ExpiryGraceDays: 30},
		{Type: "business_license", Label: "Business license", ExpiryGraceDays: 14},
	})
	if err != nil {
		panic(err)
	}
	return c
}

type catalogFile struct {
	Requirements []Requirement `yaml:"requirements"`
}

// LoadCatalog reads a YAML catalog of the form:
//
//	requirements:
//	  - type: general_liability_insurance
//	    label: General liability insurance
//	    expiryGraceDays: 30
//
// An empty path yields DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return NewCatalog(file.Requirements)
}

// Entries returns a copy of the catalog in declaration order.
func (c *Catalog) Entries() []Requirement {
	out := make([]Requirement, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len is the number of required document types.
func (c *Catalog) Len() int { return len(c.entries) }

// Contains reports whether t is a required document type.
func (c *Catalog) Contains(t DocumentType) bool {
	_, ok := c.index[t]
	return ok
}

// Lookup returns the requirement for t.
func (c *Catalog) Lookup(t DocumentType) (Requirement, bool) {
	i, ok := c.index[t]
	if !ok {
		return Requirement{}, false
	}
	return c.entries[i], true
}

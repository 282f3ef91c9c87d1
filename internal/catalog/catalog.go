// Package catalog maintains canonical biomedical entities and resolves
// free-text mentions to them.
//
// The catalog is an in-memory index over Entity rows. Persistence lives in
// internal/storage; callers hydrate the catalog from stored rows at startup
// and persist newly registered entities back.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// EntityType discriminates entity subtypes. Subtype-specific attributes live
// in extension tables keyed by entity id, not in this package.
type EntityType string

const (
	TypeGene       EntityType = "gene"
	TypeMutation   EntityType = "mutation"
	TypeCancerType EntityType = "cancer_type"
	TypeCompound   EntityType = "compound"
	TypePathway    EntityType = "pathway"
	TypeStructure  EntityType = "structure"
	TypeCellLine   EntityType = "cell_line"
	TypeDisease    EntityType = "disease"
)

// Entity is a canonical biomedical entity.
type Entity struct {
	ID          uuid.UUID         `json:"id"`
	CanonicalID string            `json:"canonical_id"` // HGNC, MeSH, ChEMBL, OncoTree, ...
	Type        EntityType        `json:"entity_type"`
	Name        string            `json:"name"`
	Aliases     []string          `json:"aliases,omitempty"`
	ExternalIDs map[string]string `json:"external_ids,omitempty"`
	Embedding   []float32         `json:"-"`
}

// Errors returned by catalog operations.
var (
	ErrNotFound  = errors.New("entity not found")
	ErrAmbiguous = errors.New("ambiguous symbol: multiple candidate entities")
)

// Catalog indexes entities by (canonical_id, type) and by lowercased
// name/alias. Safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	byID      map[uuid.UUID]*Entity
	canonical map[canonicalKey]*Entity
	// byText maps lowercased name or alias to candidate entities of each type.
	byText map[textKey][]*Entity
}

type canonicalKey struct {
	canonicalID string
	typ         EntityType
}

type textKey struct {
	text string
	typ  EntityType
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		byID:      make(map[uuid.UUID]*Entity),
		canonical: make(map[canonicalKey]*Entity),
		byText:    make(map[textKey][]*Entity),
	}
}

// RegisterOrGet registers an entity, or returns the existing one keyed by
// (canonical_id, type). Idempotent: re-registering merges aliases and
// external ids into the existing entity.
func (c *Catalog) RegisterOrGet(typ EntityType, canonicalID, name string, aliases []string, externalIDs map[string]string) *Entity {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := canonicalKey{canonicalID: canonicalID, typ: typ}
	if existing, ok := c.canonical[key]; ok {
		c.mergeLocked(existing, aliases, externalIDs)
		return existing
	}

	e := &Entity{
		ID:          uuid.New(),
		CanonicalID: canonicalID,
		Type:        typ,
		Name:        name,
		Aliases:     dedupeStrings(aliases),
		ExternalIDs: copyMap(externalIDs),
	}
	c.addLocked(e)
	return e
}

// Add inserts an already materialized entity (e.g. hydrated from storage).
// Existing (canonical_id, type) entries are replaced.
func (c *Catalog) Add(e *Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(e)
}

func (c *Catalog) addLocked(e *Entity) {
	c.byID[e.ID] = e
	c.canonical[canonicalKey{canonicalID: e.CanonicalID, typ: e.Type}] = e
	c.indexTextLocked(e, e.Name)
	for _, a := range e.Aliases {
		c.indexTextLocked(e, a)
	}
}

func (c *Catalog) indexTextLocked(e *Entity, text string) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return
	}
	key := textKey{text: text, typ: e.Type}
	for _, existing := range c.byText[key] {
		if existing.ID == e.ID {
			return
		}
	}
	c.byText[key] = append(c.byText[key], e)
}

func (c *Catalog) mergeLocked(e *Entity, aliases []string, externalIDs map[string]string) {
	for _, a := range aliases {
		found := false
		for _, existing := range e.Aliases {
			if strings.EqualFold(existing, a) {
				found = true
				break
			}
		}
		if !found {
			e.Aliases = append(e.Aliases, a)
			c.indexTextLocked(e, a)
		}
	}
	if len(externalIDs) > 0 && e.ExternalIDs == nil {
		e.ExternalIDs = make(map[string]string, len(externalIDs))
	}
	for k, v := range externalIDs {
		if _, ok := e.ExternalIDs[k]; !ok {
			e.ExternalIDs[k] = v
		}
	}
}

// Get returns an entity by id.
func (c *Catalog) Get(id uuid.UUID) (*Entity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// GetByCanonical returns an entity by (canonical_id, type).
func (c *Catalog) GetByCanonical(typ EntityType, canonicalID string) (*Entity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.canonical[canonicalKey{canonicalID: canonicalID, typ: typ}]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Resolve matches text case-insensitively against names and aliases of the
// given type. A single candidate resolves; multiple candidates return
// ErrAmbiguous together with all candidates so the caller can defer on
// context. Mutation text is normalized through the HGVS normalizer first.
func (c *Catalog) Resolve(typ EntityType, text string) (*Entity, []*Entity, error) {
	query := strings.ToLower(strings.TrimSpace(text))
	if query == "" {
		return nil, nil, ErrNotFound
	}

	if typ == TypeMutation {
		if norm := NormalizeMutation(text, ""); norm != nil {
			query = strings.ToLower(norm.HGVSProtein)
		}
	}

	c.mu.RLock()
	candidates := c.byText[textKey{text: query, typ: typ}]
	c.mu.RUnlock()

	switch len(candidates) {
	case 0:
		return nil, nil, ErrNotFound
	case 1:
		return candidates[0], candidates, nil
	default:
		return nil, candidates, fmt.Errorf("%w: %q has %d candidates", ErrAmbiguous, text, len(candidates))
	}
}

// All returns every entity, optionally filtered by type. The returned slice
// is a copy; entities are shared.
func (c *Catalog) All(typ EntityType) []*Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Entity
	for _, e := range c.byID {
		if typ == "" || e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of registered entities.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func copyMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Package catalog loads world content from YAML and serves it through the
// repository ports. Mutable world state is held in memory.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/narrator/internal/narrative"
	"github.com/dwsmith1983/narrator/internal/provider"
	"github.com/dwsmith1983/narrator/pkg/types"
)

var (
	_ provider.WorldRepository          = (*Catalog)(nil)
	_ provider.RegionRepository         = (*Catalog)(nil)
	_ provider.CharacterRepository      = (*Catalog)(nil)
	_ provider.NarrativeEventRepository = (*Catalog)(nil)
)

// Catalog holds every loaded world. It is safe for concurrent use.
type Catalog struct {
	mu         sync.RWMutex
	worlds     map[string]types.World
	regions    map[string]types.Region
	characters map[string]types.Character
	relations  map[string][]types.NpcRegionRelation // region id -> relations
	events     map[string]narrative.Event
	states     map[string]types.WorldState
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		worlds:     make(map[string]types.World),
		regions:    make(map[string]types.Region),
		characters: make(map[string]types.Character),
		relations:  make(map[string][]types.NpcRegionRelation),
		events:     make(map[string]narrative.Event),
		states:     make(map[string]types.WorldState),
	}
}

// LoadDir loads every YAML world file in dir.
func (c *Catalog) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading catalog dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := filepath.Join(dir, name)
		if err := c.LoadFile(path); err != nil {
			return fmt.Errorf("loading world %s: %w", path, err)
		}
	}
	return nil
}

// bundleFile mirrors the YAML layout. Events and state go through JSON so
// the tagged trigger and effect unions decode the same way everywhere.
type bundleFile struct {
	World      types.World               `yaml:"world"`
	Regions    []types.Region            `yaml:"regions"`
	Characters []types.Character         `yaml:"characters"`
	Relations  []types.NpcRegionRelation `yaml:"relations"`
	Events     []map[string]any          `yaml:"events"`
	State      map[string]any            `yaml:"state"`
}

// LoadFile loads a single YAML world file.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}
	b, err := ParseBundle(data)
	if err != nil {
		return err
	}
	return c.Register(b)
}

// ParseBundle decodes a YAML world file without registering it.
func ParseBundle(data []byte) (*Bundle, error) {
	var f bundleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	b := &Bundle{
		World:      f.World,
		Regions:    f.Regions,
		Characters: f.Characters,
		Relations:  f.Relations,
	}
	if err := viaJSON(f.Events, &b.Events); err != nil {
		return nil, fmt.Errorf("parsing events: %w", err)
	}
	if f.State != nil {
		if err := viaJSON(f.State, &b.State); err != nil {
			return nil, fmt.Errorf("parsing state: %w", err)
		}
	}
	return b, nil
}

func viaJSON(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Register validates a bundle and adds it, replacing any world with the
// same id.
func (c *Catalog) Register(b *Bundle) error {
	if err := ValidateBundle(b); err != nil {
		return fmt.Errorf("validating world %q: %w", b.World.ID, err)
	}
	worldID := b.World.ID

	c.mu.Lock()
	defer c.mu.Unlock()

	c.worlds[worldID] = b.World
	for _, r := range b.Regions {
		r.WorldID = worldID
		c.regions[r.ID] = r
		delete(c.relations, r.ID)
	}
	for _, ch := range b.Characters {
		ch.WorldID = worldID
		c.characters[ch.ID] = ch
	}
	for _, rel := range b.Relations {
		c.relations[rel.RegionID] = append(c.relations[rel.RegionID], rel)
	}
	for _, e := range b.Events {
		e.WorldID = worldID
		c.events[e.ID] = e
	}
	state := b.State.Clone()
	state.WorldID = worldID
	c.states[worldID] = state
	return nil
}

func (c *Catalog) GetWorld(_ context.Context, id string) (*types.World, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.worlds[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// ListWorldIDs returns every loaded world id, sorted.
func (c *Catalog) ListWorldIDs(context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.worlds))
	for id := range c.worlds {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (c *Catalog) GetWorldState(_ context.Context, worldID string) (*types.WorldState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.states[worldID]
	if !ok {
		return nil, nil
	}
	out := s.Clone()
	return &out, nil
}

// SaveWorldState replaces a world's state. The stored version must be older
// than the new one; otherwise a concurrent writer won and ErrConflict is
// returned.
func (c *Catalog) SaveWorldState(_ context.Context, state types.WorldState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.states[state.WorldID]
	if !ok {
		return fmt.Errorf("world %s: %w", state.WorldID, provider.ErrNotFound)
	}
	if state.Version <= cur.Version {
		return fmt.Errorf("world %s state version %d <= %d: %w", state.WorldID, state.Version, cur.Version, provider.ErrConflict)
	}
	c.states[state.WorldID] = state.Clone()
	return nil
}

func (c *Catalog) GetRegion(_ context.Context, id string) (*types.Region, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.regions[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// ListRegionIDs returns every region id across worlds, sorted.
func (c *Catalog) ListRegionIDs(context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.regions))
	for id := range c.regions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (c *Catalog) ListRegionRelations(_ context.Context, regionID string) ([]types.NpcRegionRelation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.relations[regionID]), nil
}

func (c *Catalog) GetCharacter(_ context.Context, id string) (*types.Character, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.characters[id]
	if !ok {
		return nil, nil
	}
	return &ch, nil
}

func (c *Catalog) GetEvent(_ context.Context, id string) (*narrative.Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.events[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

// ListActiveEvents returns a world's active events sorted by id.
func (c *Catalog) ListActiveEvents(_ context.Context, worldID string) ([]narrative.Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []narrative.Event
	for _, e := range c.events {
		if e.WorldID == worldID && e.IsActive {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b narrative.Event) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

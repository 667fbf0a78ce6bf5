// Package match resolves import-row names onto registry entities.
package match

import (
	"sort"
	"strings"

	"github.com/hazyhaar/rostersync/pkg/names"
)

// Entity is a registry record as the matcher sees it.
type Entity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	// Associations holds the display names of linked entities: an
	// organization's contacts, a person's employer.
	Associations []string `json:"associations,omitempty"`
	// Stage is the label currently stored in the registry status field.
	Stage string `json:"stage,omitempty"`
}

// entry is the per-entity view built during indexing.
type entry struct {
	role names.Role
	// association keys by role, as sets and as sorted slices for fuzzy scans
	personSet  map[string]struct{}
	orgSet     map[string]struct{}
	personKeys []string
	orgKeys    []string
}

// Index holds the four registry lookup structures. It is read-only once Build
// returns and safe to share between goroutines.
type Index struct {
	normalizer *names.Normalizer
	thresholds Thresholds

	orgs        map[string]*Entity
	persons     map[string]*Entity
	orgAssoc    map[string][]*Entity
	personAssoc map[string][]*Entity

	orgKeys    []string
	personKeys []string

	entries    map[*Entity]*entry
	collisions int
}

// Build indexes entities. Entities without a display name are skipped. On a
// direct-key collision the first entity keeps the key.
func Build(entities []*Entity, n *names.Normalizer, c *names.Classifier, t Thresholds) *Index {
	idx := &Index{
		normalizer:  n,
		thresholds:  t.withDefaults(),
		orgs:        make(map[string]*Entity),
		persons:     make(map[string]*Entity),
		orgAssoc:    make(map[string][]*Entity),
		personAssoc: make(map[string][]*Entity),
		entries:     make(map[*Entity]*entry, len(entities)),
	}

	for _, e := range entities {
		if e == nil || strings.TrimSpace(e.Name) == "" {
			continue
		}
		role := c.Classify(names.Evidence{
			Name:      e.Name,
			Type:      e.Type,
			FirstName: e.FirstName,
			LastName:  e.LastName,
		}).Role

		en := &entry{
			role:      role,
			personSet: make(map[string]struct{}),
			orgSet:    make(map[string]struct{}),
		}
		idx.entries[e] = en

		own := n.Keys(e.Name, role)
		direct := idx.direct(role)
		for _, k := range own {
			if prev, taken := direct[k]; taken {
				if prev != e {
					idx.collisions++
				}
				continue
			}
			direct[k] = e
		}

		// The own name is part of the association set, keyed by the
		// entity's role; linked names are keyed by the opposite role.
		idx.associate(e, en, role, own)
		for _, name := range e.Associations {
			idx.associate(e, en, role.Opposite(), n.Keys(name, role.Opposite()))
		}
	}

	idx.orgKeys = sortedKeys(idx.orgs)
	idx.personKeys = sortedKeys(idx.persons)
	for _, en := range idx.entries {
		en.orgKeys = sortedSet(en.orgSet)
		en.personKeys = sortedSet(en.personSet)
	}
	return idx
}

func (idx *Index) associate(e *Entity, en *entry, role names.Role, keys []string) {
	assoc, set := idx.orgAssoc, en.orgSet
	if role == names.Person {
		assoc, set = idx.personAssoc, en.personSet
	}
	for _, k := range keys {
		if k == "" {
			continue
		}
		set[k] = struct{}{}
		if !containsEntity(assoc[k], e) {
			assoc[k] = append(assoc[k], e)
		}
	}
}

func (idx *Index) direct(role names.Role) map[string]*Entity {
	if role == names.Person {
		return idx.persons
	}
	return idx.orgs
}

// Lookup returns the entity directly indexed under key for role.
func (idx *Index) Lookup(key string, role names.Role) (*Entity, bool) {
	e, ok := idx.direct(role)[key]
	return e, ok
}

// Associated returns the entities whose association set produced key for role.
func (idx *Index) Associated(key string, role names.Role) []*Entity {
	if role == names.Person {
		return idx.personAssoc[key]
	}
	return idx.orgAssoc[key]
}

// RoleOf returns the role an indexed entity was classified as.
func (idx *Index) RoleOf(e *Entity) names.Role {
	if en, ok := idx.entries[e]; ok {
		return en.role
	}
	return 0
}

// Len returns the number of indexed entities.
func (idx *Index) Len() int { return len(idx.entries) }

// Collisions returns how many direct keys were already taken by another entity.
func (idx *Index) Collisions() int { return idx.collisions }

// KeyCounts returns the number of direct organization and person keys.
func (idx *Index) KeyCounts() (orgs, persons int) {
	return len(idx.orgKeys), len(idx.personKeys)
}

func sortedKeys(m map[string]*Entity) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSet(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsEntity(list []*Entity, e *Entity) bool {
	for _, x := range list {
		if x == e {
			return true
		}
	}
	return false
}

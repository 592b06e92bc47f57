package history

import (
	"encoding/json"

	"wavebind/logger"
	"wavebind/wavebase"
)

// StoreKey is the key the record list is persisted under.
const StoreKey = "wavebind:history"

// KV is the persistence the cache writes through to.
type KV interface {
	Get(key string) ([]byte, error)
	PutBytes(key string, value []byte) error
}

// Cache is a most-recent-first list of at most one record per model.
type Cache struct {
	max     int
	records []Record
	store   KV
}

// New creates a cache holding at most max records. When store is non-nil
// previously persisted records are loaded; unreadable data starts empty.
func New(max int, store KV) *Cache {
	if max <= 0 {
		max = DefaultMaxRecords
	}
	c := &Cache{max: max, store: store}
	c.load()
	return c
}

func (c *Cache) load() {
	if c.store == nil {
		return
	}

	data, err := c.store.Get(StoreKey)
	if err != nil {
		if !wavebase.IsNotFound(err) {
			logger.Warn("Failed to read history", "error", err)
		}
		return
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		logger.Warn("Ignoring malformed history", "error", err)
		return
	}

	c.records = nil
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.ModelID == "" || seen[r.ModelID] {
			continue
		}
		seen[r.ModelID] = true
		c.records = append(c.records, r)
		if len(c.records) == c.max {
			break
		}
	}
}

func (c *Cache) persist() {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(c.records)
	if err != nil {
		logger.Error("Failed to marshal history", "error", err)
		return
	}
	if err := c.store.PutBytes(StoreKey, data); err != nil {
		logger.Error("Failed to persist history", "error", err)
	}
}

// Save inserts r at the front, evicting any older record for the same model
// and anything beyond the cap.
func (c *Cache) Save(r Record) {
	if r.ModelID == "" {
		return
	}

	for i, existing := range c.records {
		if existing.ModelID == r.ModelID {
			c.records = append(c.records[:i], c.records[i+1:]...)
			break
		}
	}

	c.records = append([]Record{r.clone()}, c.records...)
	if len(c.records) > c.max {
		logger.Debug("Evicting history records", "count", len(c.records)-c.max)
		c.records = c.records[:c.max]
	}

	logger.Debug("Saved model to history", "model", r.ModelID, "values", len(r.Values), "connections", len(r.Connections), "records", len(c.records))
	c.persist()
}

// Exact returns the record for modelID.
func (c *Cache) Exact(modelID string) (Record, bool) {
	for _, r := range c.records {
		if r.ModelID == modelID {
			return r.clone(), true
		}
	}
	return Record{}, false
}

// Fuzzy assembles values for names from the most recent record containing
// each name. A name's connection comes from the same record as its value.
func (c *Cache) Fuzzy(names []string) Match {
	m := Match{
		Values:      make(map[string]Value),
		Connections: make(map[string]Source),
		Origins:     make(map[string]string),
	}

	for _, name := range names {
		for _, r := range c.records {
			v, ok := r.Values[name]
			if !ok {
				continue
			}
			m.Values[name] = v
			m.Origins[name] = r.ModelID
			if src, ok := r.Connections[name]; ok {
				m.Connections[name] = src
			}
			break
		}
	}

	return m
}

// Lookup returns the exact record for modelID when one exists, and a
// fuzzy match over names otherwise.
func (c *Cache) Lookup(modelID string, names []string) (Match, bool) {
	if r, ok := c.Exact(modelID); ok {
		return r.AsMatch(), true
	}
	return c.Fuzzy(names), false
}

// Records returns the current list, most recent first.
func (c *Cache) Records() []Record {
	out := make([]Record, len(c.records))
	for i, r := range c.records {
		out[i] = r.clone()
	}
	return out
}

// Len returns the number of remembered models.
func (c *Cache) Len() int {
	return len(c.records)
}

// Clear forgets every record.
func (c *Cache) Clear() {
	c.records = nil
	c.persist()
}

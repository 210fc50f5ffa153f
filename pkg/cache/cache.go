package cache

import (
	"strings"
	"sync/atomic"

	"github.com/localdns/localdns/pkg/db"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// RecordSource is the slice of the store the cache needs.
type RecordSource interface {
	ActiveRecords() ([]db.Record, error)
}

type exactKey struct {
	name  string
	rType string
}

type wildcardEntry struct {
	suffix string
	rType  string
	record db.Record
}

// snapshot is immutable once published; readers share it by pointer.
type snapshot struct {
	exact     map[exactKey]db.Record
	wildcards []wildcardEntry
}

// Cache answers (qname, qtype) lookups from an in-memory snapshot of the
// active records. The snapshot is replaced wholesale by Reload; the query
// path never touches the store.
type Cache struct {
	source   RecordSource
	snapshot atomic.Pointer[snapshot]
}

// New builds a cache and performs the initial load.
func New(source RecordSource) (*Cache, error) {
	c := &Cache{source: source}
	c.snapshot.Store(&snapshot{exact: map[exactKey]db.Record{}})

	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rebuilds both indices from the store and swaps them in
// atomically. On storage error the previous snapshot stays in place.
func (c *Cache) Reload() error {
	records, err := c.source.ActiveRecords()
	if err != nil {
		logrus.Errorf("record cache reload failed: %v", err)
		return err
	}

	c.snapshot.Store(build(records))
	logrus.Debugf("record cache reloaded: %d records", len(records))
	return nil
}

func build(records []db.Record) *snapshot {
	s := &snapshot{exact: make(map[exactKey]db.Record, len(records))}

	for _, record := range records {
		pattern := strings.ToLower(record.DomainPattern)

		// A leading "%." makes a wildcard; a "%" anywhere else is just a
		// literal character.
		if suffix, ok := strings.CutPrefix(pattern, "%."); ok {
			s.wildcards = append(s.wildcards, wildcardEntry{
				suffix: suffix,
				rType:  record.RecordType,
				record: record,
			})
			continue
		}

		key := exactKey{name: pattern, rType: record.RecordType}
		if existing, ok := s.exact[key]; !ok || record.ID < existing.ID {
			s.exact[key] = record
		}
	}

	// Longest suffix first so the most specific wildcard wins; id breaks
	// ties.
	slices.SortStableFunc(s.wildcards, func(a, b wildcardEntry) int {
		if len(a.suffix) != len(b.suffix) {
			return len(b.suffix) - len(a.suffix)
		}
		return int(a.record.ID) - int(b.record.ID)
	})

	return s
}

// Lookup returns the winning active record for a lowercased query name
// and type. Exact matches beat wildcards; among wildcards the longest
// suffix wins, then the lowest id.
func (c *Cache) Lookup(qname, qtype string) (db.Record, bool) {
	s := c.snapshot.Load()

	if record, ok := s.exact[exactKey{name: qname, rType: qtype}]; ok {
		return record, true
	}

	for _, entry := range s.wildcards {
		if entry.rType != qtype {
			continue
		}
		if qname == entry.suffix || strings.HasSuffix(qname, "."+entry.suffix) {
			return entry.record, true
		}
	}

	return db.Record{}, false
}

// Size returns the number of indexed records.
func (c *Cache) Size() int {
	s := c.snapshot.Load()
	return len(s.exact) + len(s.wildcards)
}

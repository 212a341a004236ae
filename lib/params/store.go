package params

import (
	"bytes"
	"sort"

	"github.com/ValentinKolb/rtparam/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("params")

// Record is a parameter together with its value
type Record struct {
	Key   Key    `json:"key"`
	Value []byte `json:"value"`
}

// SetResult is the outcome of a set. Created is true if the key did not exist,
// otherwise Previous holds the replaced value.
type SetResult struct {
	Created  bool
	Previous []byte
}

func (r SetResult) String() string {
	if r.Created {
		return "New"
	}
	return "Old(" + string(r.Previous) + ")"
}

// VHostGuard checks that a virtual host exists. AssertExists must return an
// error matching store.ErrScopeNotFound if it does not.
type VHostGuard interface {
	AssertExists(vhost string) error
}

type allowAll struct{}

func (allowAll) AssertExists(string) error { return nil }

// Store is the runtime parameter store. All mutations run as transactions of
// the underlying store.IStore; Lookup and the bulk reads use its non
// transactional reads.
type Store struct {
	s     store.IStore
	guard VHostGuard
}

// NewStore creates a parameter store on top of s. A nil guard accepts every vhost.
func NewStore(s store.IStore, guard VHostGuard) *Store {
	if guard == nil {
		guard = allowAll{}
	}
	return &Store{s: s, guard: guard}
}

// Backend returns the underlying store
func (p *Store) Backend() store.IStore {
	return p.s
}

// SetGlobal stores value under the global key id
func (p *Store) SetGlobal(id string, value []byte) (SetResult, error) {
	return p.set(GlobalKey(id), value)
}

// SetScoped stores value under (vhost, component, name). The vhost must exist.
func (p *Store) SetScoped(vhost, component, name string, value []byte) (SetResult, error) {
	if err := p.guard.AssertExists(vhost); err != nil {
		return SetResult{}, err
	}
	return p.set(ScopedKey(vhost, component, name), value)
}

func (p *Store) set(k Key, value []byte) (SetResult, error) {
	enc := k.Encode()
	var res SetResult
	err := p.s.Transaction(func(tx store.Txn) error {
		prev, ok, err := tx.Get(enc)
		if err != nil {
			return err
		}
		res = SetResult{Created: !ok, Previous: prev}
		tx.Put(enc, value)
		return nil
	})
	if err != nil {
		return SetResult{}, err
	}
	log.Debugf("set %s (%s)", k, res)
	return res, nil
}

// Lookup returns the current record of k. The read is not part of a
// transaction and may miss a concurrent, not yet committed write.
func (p *Store) Lookup(k Key) (Record, bool, error) {
	value, ok, err := p.s.Get(k.Encode())
	if err != nil || !ok {
		return Record{}, false, err
	}
	return Record{Key: k, Value: value}, true, nil
}

// LookupOrSet returns the record of k, storing def first if k is absent.
// Concurrent callers on the same absent key all observe the same value.
func (p *Store) LookupOrSet(k Key, def []byte) (Record, error) {
	enc := k.Encode()
	var rec Record
	err := p.s.Transaction(func(tx store.Txn) error {
		value, ok, err := tx.Get(enc)
		if err != nil {
			return err
		}
		if !ok {
			tx.Put(enc, def)
			value = def
		}
		rec = Record{Key: k, Value: value}
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// GetAll returns every record (global and scoped) ordered by encoded key
func (p *Store) GetAll() ([]Record, error) {
	return p.collect(func(Key) bool { return true })
}

// GetAllScoped returns the scoped records matching vhost and component.
// A literal vhost must exist.
func (p *Store) GetAllScoped(vhost, component Field) ([]Record, error) {
	if v, ok := vhost.Value(); ok {
		if err := p.guard.AssertExists(v); err != nil {
			return nil, err
		}
	}
	return p.collect(Pattern{VHost: vhost, Component: component, Name: Any}.Matches)
}

// collect scans the store and returns the matching records sorted by encoded key
func (p *Store) collect(match func(Key) bool) ([]Record, error) {
	type entry struct {
		enc string
		rec Record
	}
	var entries []entry

	err := p.s.Scan(func(enc string, value []byte) bool {
		k, err := DecodeKey(enc)
		if err != nil {
			log.Warningf("skipping undecodable key %q: %v", enc, err)
			return true
		}
		if match(k) {
			entries = append(entries, entry{enc: enc, rec: Record{Key: k, Value: bytes.Clone(value)}})
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].enc < entries[j].enc })
	records := make([]Record, len(entries))
	for i, e := range entries {
		records[i] = e.rec
	}
	return records, nil
}

// RemoveGlobal deletes the global key id, absent keys are ignored
func (p *Store) RemoveGlobal(id string) error {
	return p.remove(GlobalKey(id))
}

// RemoveScoped deletes (vhost, component, name), absent keys are ignored
func (p *Store) RemoveScoped(vhost, component, name string) error {
	return p.remove(ScopedKey(vhost, component, name))
}

func (p *Store) remove(k Key) error {
	enc := k.Encode()
	return p.s.Transaction(func(tx store.Txn) error {
		tx.Delete(enc)
		return nil
	})
}

// RemoveMatching atomically deletes every scoped key matching pattern and
// returns the number of deleted keys.
func (p *Store) RemoveMatching(pattern Pattern) (int, error) {
	var removed int
	err := p.s.Transaction(func(tx store.Txn) error {
		var matched []string
		if err := tx.Scan(func(enc string, _ []byte) bool {
			if k, err := DecodeKey(enc); err == nil && pattern.Matches(k) {
				matched = append(matched, enc)
			}
			return true
		}); err != nil {
			return err
		}
		for _, enc := range matched {
			tx.Delete(enc)
		}
		removed = len(matched)
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Debugf("removed %d keys matching %s", removed, pattern)
	return removed, nil
}

// Restore stores all records in a single transaction. The vhosts of scoped
// records must exist.
func (p *Store) Restore(records []Record) error {
	for _, r := range records {
		if !r.Key.Global {
			if err := p.guard.AssertExists(r.Key.VHost); err != nil {
				return err
			}
		}
	}
	return p.s.Transaction(func(tx store.Txn) error {
		for _, r := range records {
			tx.Put(r.Key.Encode(), r.Value)
		}
		return nil
	})
}

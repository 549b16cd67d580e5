package cache

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	entriesPrefix = "entries:"
	expiryPrefix  = "expiry:"
)

// BoltStore is the durable store. Each kind has an entries bucket keyed by
// cache key and an expiry bucket keyed by big-endian expiry nanos followed
// by the cache key, so expired entries are one ordered range scan.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the database file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for BoltDB: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for kind := range DefaultPolicies() {
			if _, _, err := buckets(tx, kind); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func buckets(tx *bolt.Tx, kind Kind) (entries, expiry *bolt.Bucket, err error) {
	entries, err = tx.CreateBucketIfNotExists([]byte(entriesPrefix + string(kind)))
	if err != nil {
		return nil, nil, err
	}
	expiry, err = tx.CreateBucketIfNotExists([]byte(expiryPrefix + string(kind)))
	if err != nil {
		return nil, nil, err
	}
	return entries, expiry, nil
}

func expiryKey(at time.Time, key string) []byte {
	b := make([]byte, 8+len(key))
	binary.BigEndian.PutUint64(b, uint64(at.UnixNano()))
	copy(b[8:], key)
	return b
}

func (s *BoltStore) Get(kind Kind, key string, now time.Time) (Entry, bool, error) {
	var (
		e     Entry
		found bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		entries, expiry, err := buckets(tx, kind)
		if err != nil {
			return err
		}
		raw := entries.Get([]byte(key))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return fmt.Errorf("corrupt entry %s/%s: %w", kind, key, err)
		}
		if e.Expired(now) {
			if err := expiry.Delete(expiryKey(e.ExpiresAt, key)); err != nil {
				return err
			}
			return entries.Delete([]byte(key))
		}

		e.AccessCount++
		e.LastAccessedAt = now
		updated, err := json.Marshal(e)
		if err != nil {
			return err
		}
		found = true
		return entries.Put([]byte(key), updated)
	})
	if err != nil {
		return Entry{}, false, err
	}
	return e, found, nil
}

func (s *BoltStore) Put(e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		entries, expiry, err := buckets(tx, e.Kind)
		if err != nil {
			return err
		}
		if old := entries.Get([]byte(e.Key)); old != nil {
			var prev Entry
			if json.Unmarshal(old, &prev) == nil {
				if err := expiry.Delete(expiryKey(prev.ExpiresAt, e.Key)); err != nil {
					return err
				}
			}
		}
		if err := entries.Put([]byte(e.Key), raw); err != nil {
			return err
		}
		return expiry.Put(expiryKey(e.ExpiresAt, e.Key), nil)
	})
}

func (s *BoltStore) Delete(kind Kind, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		entries, expiry, err := buckets(tx, kind)
		if err != nil {
			return err
		}
		return deleteEntry(entries, expiry, key)
	})
}

func deleteEntry(entries, expiry *bolt.Bucket, key string) error {
	raw := entries.Get([]byte(key))
	if raw == nil {
		return nil
	}
	var e Entry
	if json.Unmarshal(raw, &e) == nil {
		if err := expiry.Delete(expiryKey(e.ExpiresAt, key)); err != nil {
			return err
		}
	}
	return entries.Delete([]byte(key))
}

func (s *BoltStore) PurgeExpired(now time.Time) (int, error) {
	purged := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, expiry *bolt.Bucket) error {
			if !bytes.HasPrefix(name, []byte(expiryPrefix)) {
				return nil
			}
			entries := tx.Bucket([]byte(entriesPrefix + string(name[len(expiryPrefix):])))
			limit := expiryKey(now, "")

			// collect first; deleting under a live cursor skips keys
			var stale [][]byte
			c := expiry.Cursor()
			for k, _ := c.First(); k != nil && bytes.Compare(k[:8], limit) < 0; k, _ = c.Next() {
				stale = append(stale, append([]byte(nil), k...))
			}
			for _, k := range stale {
				if err := expiry.Delete(k); err != nil {
					return err
				}
				if entries != nil {
					if err := entries.Delete(k[8:]); err != nil {
						return err
					}
				}
			}
			purged += len(stale)
			return nil
		})
	})
	return purged, err
}

func (s *BoltStore) EnforceCapacity(kind Kind, capacity int, keep string) (int, error) {
	evicted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		entries, expiry, err := buckets(tx, kind)
		if err != nil {
			return err
		}
		var (
			all   []Entry
			total int
		)
		err = entries.ForEach(func(k, v []byte) error {
			total++
			if string(k) == keep {
				return nil
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			all = append(all, e)
			return nil
		})
		if err != nil {
			return err
		}
		excess := min(total-capacity, len(all))
		if excess <= 0 {
			return nil
		}

		// least often, then least recently accessed go first
		sort.Slice(all, func(i, j int) bool {
			if all[i].AccessCount != all[j].AccessCount {
				return all[i].AccessCount < all[j].AccessCount
			}
			return all[i].LastAccessedAt.Before(all[j].LastAccessedAt)
		})
		for _, e := range all[:excess] {
			if err := deleteEntry(entries, expiry, e.Key); err != nil {
				return err
			}
			evicted++
		}
		return nil
	})
	return evicted, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	harvestBucket = "harvested"
	// value layout: harvested-at unix seconds, then expiry unix seconds.
	entryBytes = 16
)

// boltStore is a Store backed by a bbolt file. A background sweeper drops
// expired entries every cleanup interval.
type boltStore struct {
	db         *bolt.DB
	articleTTL time.Duration
	now        func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func openBolt(path string, opts Options) (*boltStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(harvestBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	store := &boltStore{
		db:         db,
		articleTTL: opts.ArticleTTL,
		now:        time.Now,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go store.sweep(opts.CleanupInterval)
	return store, nil
}

// Close stops the sweeper and closes the database.
func (b *boltStore) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stop)
		<-b.done
		err = b.db.Close()
	})
	return err
}

// SeenArticle reports whether url was harvested and has not expired.
func (b *boltStore) SeenArticle(url string) (bool, error) {
	var seen bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(harvestBucket))
		if bucket == nil {
			return fmt.Errorf("harvest bucket missing")
		}
		value := bucket.Get(urlKey(url))
		if value == nil {
			return nil
		}
		_, expiry, ok := decodeEntry(value)
		seen = ok && expiry.After(b.now())
		return nil
	})
	return seen, err
}

// MarkArticle records url as harvested now.
func (b *boltStore) MarkArticle(url string) error {
	now := b.now()
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(harvestBucket))
		if bucket == nil {
			return fmt.Errorf("harvest bucket missing")
		}
		return bucket.Put(urlKey(url), encodeEntry(now, now.Add(b.articleTTL)))
	})
}

func (b *boltStore) sweep(interval time.Duration) {
	defer close(b.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			_, _ = b.purgeExpired()
		}
	}
}

// purgeExpired deletes expired or malformed entries and returns how many
// were removed.
func (b *boltStore) purgeExpired() (int, error) {
	now := b.now()
	removed := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(harvestBucket))
		if bucket == nil {
			return fmt.Errorf("harvest bucket missing")
		}
		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			_, expiry, ok := decodeEntry(v)
			if ok && expiry.After(now) {
				continue
			}
			if err := cursor.Delete(); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func encodeEntry(harvested, expiry time.Time) []byte {
	buf := make([]byte, entryBytes)
	binary.BigEndian.PutUint64(buf[:8], uint64(harvested.Unix()))
	binary.BigEndian.PutUint64(buf[8:], uint64(expiry.Unix()))
	return buf
}

func decodeEntry(value []byte) (time.Time, time.Time, bool) {
	if len(value) != entryBytes {
		return time.Time{}, time.Time{}, false
	}
	harvested := int64(binary.BigEndian.Uint64(value[:8]))
	expiry := int64(binary.BigEndian.Uint64(value[8:]))
	if expiry <= 0 {
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(harvested, 0), time.Unix(expiry, 0), true
}

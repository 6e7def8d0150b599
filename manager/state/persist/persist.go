// Package persist keeps the content of the memory store in a bolt file so
// that it survives restarts.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/contractor/addrspace/api"
	"github.com/contractor/addrspace/log"
	"github.com/contractor/addrspace/manager/state/store"
	events "github.com/docker/go-events"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Layout:
//
//  bucket(v1.snapshot) ->
//			data (store snapshot, JSON)
//			version (store version of data, decimal)
var (
	bucketKeyStorageVersion = []byte("v1")
	bucketKeySnapshot       = []byte("snapshot")
	bucketKeyData           = []byte("data")
	bucketKeyVersion        = []byte("version")
)

type bucketKeyPath [][]byte

func (bk bucketKeyPath) String() string {
	return string(bytes.Join([][]byte(bk), []byte("/")))
}

// DB is an open snapshot file.
type DB struct {
	db *bolt.DB
}

// Open opens or creates the snapshot file at path. It fails if another
// process holds the file for longer than a second.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening state file %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := createBucketIfNotExists(tx, bucketKeyStorageVersion, bucketKeySnapshot)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

// Close closes the file.
func (d *DB) Close() error {
	return d.db.Close()
}

// Put replaces the stored snapshot.
func (d *DB) Put(snapshot *api.StoreSnapshot) error {
	p, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "encoding snapshot")
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		bkt := getBucket(tx, bucketKeyStorageVersion, bucketKeySnapshot)
		if bkt == nil {
			return errors.Errorf("bucket %v missing", bucketKeyPath{bucketKeyStorageVersion, bucketKeySnapshot})
		}
		if err := bkt.Put(bucketKeyData, p); err != nil {
			return err
		}
		return bkt.Put(bucketKeyVersion, []byte(strconv.FormatUint(snapshot.Version, 10)))
	})
}

// Get returns the stored snapshot, or nil if none was written yet.
func (d *DB) Get() (*api.StoreSnapshot, error) {
	var snapshot *api.StoreSnapshot
	err := d.db.View(func(tx *bolt.Tx) error {
		bkt := getBucket(tx, bucketKeyStorageVersion, bucketKeySnapshot)
		if bkt == nil {
			return nil
		}
		p := bkt.Get(bucketKeyData)
		if p == nil {
			return nil
		}
		snapshot = &api.StoreSnapshot{}
		return errors.Wrap(json.Unmarshal(p, snapshot), "decoding snapshot")
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Restore loads the stored snapshot into s. It reports false when the file
// holds no snapshot.
func (d *DB) Restore(ctx context.Context, s *store.MemoryStore) (bool, error) {
	snapshot, err := d.Get()
	if err != nil || snapshot == nil {
		return false, err
	}
	if err := s.Restore(snapshot); err != nil {
		return false, errors.Wrap(err, "restoring store")
	}
	log.G(ctx).WithField("version", snapshot.Version).Info("state restored")
	return true, nil
}

// Save writes the current content of s.
func (d *DB) Save(ctx context.Context, s *store.MemoryStore) error {
	snapshot, err := s.Save()
	if err != nil {
		return errors.Wrap(err, "saving store")
	}
	if err := d.Put(snapshot); err != nil {
		return err
	}
	log.G(ctx).WithField("version", snapshot.Version).Debug("state saved")
	return nil
}

// Run saves s after every committed transaction until ctx is done. A store
// ahead of the file is saved right away. Commits
// that arrive while a save is running are folded into the next save. A
// final save is made on the way out.
func (d *DB) Run(ctx context.Context, s *store.MemoryStore) error {
	ctx = log.WithModule(ctx, "persist")
	commits, cancel := s.WatchQueue().CallbackWatch(events.MatcherFunc(func(e events.Event) bool {
		_, ok := e.(api.EventCommit)
		return ok
	}))
	defer cancel()

	saved, err := d.storedVersion()
	if err != nil {
		return err
	}
	if s.Version() != saved {
		if err := d.Save(ctx, s); err != nil {
			return err
		}
		saved = s.Version()
	}
	for {
		select {
		case _, ok := <-commits:
			if !ok {
				return nil
			}
			if s.Version() == saved {
				continue
			}
			if err := d.Save(ctx, s); err != nil {
				log.G(ctx).WithError(err).Error("failed to save state")
				continue
			}
			saved = s.Version()
		case <-ctx.Done():
			if s.Version() != saved {
				if err := d.Save(context.Background(), s); err != nil {
					return err
				}
			}
			return ctx.Err()
		}
	}
}

func (d *DB) storedVersion() (uint64, error) {
	var v uint64
	err := d.db.View(func(tx *bolt.Tx) error {
		bkt := getBucket(tx, bucketKeyStorageVersion, bucketKeySnapshot)
		if bkt == nil {
			return nil
		}
		p := bkt.Get(bucketKeyVersion)
		if p == nil {
			return nil
		}
		var err error
		v, err = strconv.ParseUint(string(p), 10, 64)
		return errors.Wrap(err, "decoding snapshot version")
	})
	return v, err
}

func getBucket(tx *bolt.Tx, keys ...[]byte) *bolt.Bucket {
	bkt := tx.Bucket(keys[0])
	for _, key := range keys[1:] {
		if bkt == nil {
			break
		}
		bkt = bkt.Bucket(key)
	}
	return bkt
}

func createBucketIfNotExists(tx *bolt.Tx, keys ...[]byte) (*bolt.Bucket, error) {
	bkt, err := tx.CreateBucketIfNotExists(keys[0])
	if err != nil {
		return nil, err
	}
	for _, key := range keys[1:] {
		bkt, err = bkt.CreateBucketIfNotExists(key)
		if err != nil {
			return nil, err
		}
	}
	return bkt, nil
}

package store

import (
	"bytes"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/apache/ozone-scm/pkg/scmerrors"
)

// BoltStore implements Store on top of go.etcd.io/bbolt, an embedded
// KV engine backing the four tables (nodes, pipelines, containers,
// meta) plus range iteration and a checkpoint operation.
type BoltStore struct {
	db   *bolt.DB
	path string
}

var allTables = [][]byte{
	[]byte(TableNodes),
	[]byte(TablePipelines),
	[]byte(TableContainers),
	[]byte(TableMeta),
}

// Open opens (creating if necessary) a BoltStore at dataDir/scm.db.
func Open(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, scmerrors.Wrap(scmerrors.IoFailed, err, "create data directory")
	}

	dbPath := filepath.Join(dataDir, "scm.db")
	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, scmerrors.Wrap(scmerrors.IoFailed, err, "open bolt database")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allTables {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, scmerrors.Wrap(scmerrors.IoFailed, err, "create tables")
	}

	return &BoltStore{db: db, path: dbPath}, nil
}

func (s *BoltStore) Close() error {
	if err := s.db.Close(); err != nil {
		return scmerrors.Wrap(scmerrors.IoFailed, err, "close bolt database")
	}
	return nil
}

// Checkpoint writes a consistent copy of the whole database file to
// path, inside a read-only transaction, so a follower's snapshot
// transport can ship it whole via install_snapshot.
func (s *BoltStore) Checkpoint(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return scmerrors.Wrap(scmerrors.IoFailed, err, "create checkpoint directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return scmerrors.Wrap(scmerrors.IoFailed, err, "create checkpoint file")
	}
	defer f.Close()

	err = s.db.View(func(tx *bolt.Tx) error {
		_, err := tx.WriteTo(f)
		return err
	})
	if err != nil {
		return scmerrors.Wrap(scmerrors.IoFailed, err, "write checkpoint")
	}
	return nil
}

func (s *BoltStore) Table(name string) Table {
	return &boltOutsideBatchTable{db: s.db, name: []byte(name)}
}

func (s *BoltStore) Update(fn func(Batch) error) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltBatch{tx: tx})
	})
	if err != nil {
		return classifyBoltErr(err)
	}
	return nil
}

func (s *BoltStore) View(fn func(Batch) error) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		return fn(&boltBatch{tx: tx})
	})
	if err != nil {
		return classifyBoltErr(err)
	}
	return nil
}

func classifyBoltErr(err error) error {
	if err == nil {
		return nil
	}
	if werr, ok := err.(*scmerrors.Error); ok {
		return werr
	}
	return scmerrors.Wrap(scmerrors.IoFailed, err, "bolt transaction")
}

type boltBatch struct {
	tx *bolt.Tx
}

func (b *boltBatch) Table(name string) Table {
	return &boltTable{bucket: b.tx.Bucket([]byte(name))}
}

// boltOutsideBatchTable wraps single-operation table access when the
// caller isn't inside an explicit Update/View — each call gets its own
// bolt transaction, one transaction per call.
type boltOutsideBatchTable struct {
	db   *bolt.DB
	name []byte
}

func (t *boltOutsideBatchTable) Get(key []byte) ([]byte, error) {
	var out []byte
	err := t.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(t.name).Get(key)
		if v == nil {
			return scmerrors.New(scmerrors.NotFound, string(key))
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, classifyBoltErr(err)
	}
	return out, nil
}

func (t *boltOutsideBatchTable) Put(key, value []byte) error {
	return classifyBoltErr(t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(t.name).Put(key, value)
	}))
}

func (t *boltOutsideBatchTable) Delete(key []byte) error {
	return classifyBoltErr(t.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(t.name).Delete(key)
	}))
}

func (t *boltOutsideBatchTable) Range(start []byte, reverse bool, fn RangeFunc) error {
	return classifyBoltErr(t.db.View(func(tx *bolt.Tx) error {
		return rangeBucket(tx.Bucket(t.name), start, reverse, fn)
	}))
}

// boltTable is a table handle bound to an already-open transaction,
// returned from within Update/View so a caller can touch several tables
// atomically.
type boltTable struct {
	bucket *bolt.Bucket
}

func (t *boltTable) Get(key []byte) ([]byte, error) {
	v := t.bucket.Get(key)
	if v == nil {
		return nil, scmerrors.New(scmerrors.NotFound, string(key))
	}
	return append([]byte(nil), v...), nil
}

func (t *boltTable) Put(key, value []byte) error {
	return t.bucket.Put(key, value)
}

func (t *boltTable) Delete(key []byte) error {
	return t.bucket.Delete(key)
}

func (t *boltTable) Range(start []byte, reverse bool, fn RangeFunc) error {
	return rangeBucket(t.bucket, start, reverse, fn)
}

func rangeBucket(b *bolt.Bucket, start []byte, reverse bool, fn RangeFunc) error {
	c := b.Cursor()

	var k, v []byte
	if reverse {
		if len(start) == 0 {
			k, v = c.Last()
		} else {
			k, v = c.Seek(start)
			if k == nil || bytes.Compare(k, start) > 0 {
				k, v = c.Prev()
			}
		}
		for ; k != nil; k, v = c.Prev() {
			cont, err := fn(k, v)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	}

	if len(start) == 0 {
		k, v = c.First()
	} else {
		k, v = c.Seek(start)
	}
	for ; k != nil; k, v = c.Next() {
		cont, err := fn(k, v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	recordBucketName  = "records"
	failureBucketName = "failures"
)

// DB defines the interface for ledger persistence.
type DB interface {
	// InsertRecord saves a new record and returns its generated id
	InsertRecord(record *Record) (uint64, error)

	// GetRecord retrieves a record by id
	GetRecord(id uint64) (*Record, error)

	// ListRecords returns all records in insertion order
	ListRecords() ([]*Record, error)

	// UpdateRecord replaces an existing record in full
	UpdateRecord(record *Record) error

	// DeleteRecords removes records by id and returns how many existed
	DeleteRecords(ids []uint64) (int, error)

	// InsertFailure saves a new failure record and returns its generated id
	InsertFailure(failure *Failure) (uint64, error)

	// GetFailure retrieves a failure record by id
	GetFailure(id uint64) (*Failure, error)

	// ListFailures returns all failure records in insertion order
	ListFailures() ([]*Failure, error)

	// DeleteFailure removes a failure record
	DeleteFailure(id uint64) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(recordBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(failureBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// itob encodes an id as a big-endian key so ForEach walks records in
// insertion order.
func itob(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// InsertRecord saves a new record and returns its generated id.
func (b *BoltDB) InsertRecord(record *Record) (uint64, error) {
	var id uint64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucketName))
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating record id: %w", err)
		}
		record.ID = seq
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		if err := bucket.Put(itob(seq), data); err != nil {
			return err
		}
		id = seq
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetRecord retrieves a record by id.
func (b *BoltDB) GetRecord(id uint64) (*Record, error) {
	var record *Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucketName))
		data := bucket.Get(itob(id))
		if data == nil {
			return fmt.Errorf("record not found: %d", id)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListRecords returns all records in insertion order.
func (b *BoltDB) ListRecords() ([]*Record, error) {
	records := make([]*Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling record: %w", err)
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// UpdateRecord replaces an existing record in full.
func (b *BoltDB) UpdateRecord(record *Record) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucketName))
		key := itob(record.ID)
		if bucket.Get(key) == nil {
			return fmt.Errorf("record not found: %d", record.ID)
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		return bucket.Put(key, data)
	})
}

// DeleteRecords removes records by id and returns how many existed.
func (b *BoltDB) DeleteRecords(ids []uint64) (int, error) {
	deleted := 0
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucketName))
		for _, id := range ids {
			key := itob(id)
			if bucket.Get(key) == nil {
				continue
			}
			if err := bucket.Delete(key); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// InsertFailure saves a new failure record and returns its generated id.
func (b *BoltDB) InsertFailure(failure *Failure) (uint64, error) {
	var id uint64
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(failureBucketName))
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating failure id: %w", err)
		}
		failure.ID = seq
		data, err := json.Marshal(failure)
		if err != nil {
			return fmt.Errorf("marshaling failure: %w", err)
		}
		if err := bucket.Put(itob(seq), data); err != nil {
			return err
		}
		id = seq
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetFailure retrieves a failure record by id.
func (b *BoltDB) GetFailure(id uint64) (*Failure, error) {
	var failure *Failure
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(failureBucketName))
		data := bucket.Get(itob(id))
		if data == nil {
			return fmt.Errorf("failure not found: %d", id)
		}
		return json.Unmarshal(data, &failure)
	})
	if err != nil {
		return nil, err
	}
	return failure, nil
}

// ListFailures returns all failure records in insertion order.
func (b *BoltDB) ListFailures() ([]*Failure, error) {
	failures := make([]*Failure, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(failureBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var failure Failure
			if err := json.Unmarshal(v, &failure); err != nil {
				return fmt.Errorf("unmarshaling failure: %w", err)
			}
			failures = append(failures, &failure)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return failures, nil
}

// DeleteFailure removes a failure record.
func (b *BoltDB) DeleteFailure(id uint64) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(failureBucketName))
		return bucket.Delete(itob(id))
	})
}

// Close closes the database connection.
func (b *BoltDB) Close() error {
	return b.db.Close()
}

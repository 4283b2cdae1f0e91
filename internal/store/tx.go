package store

import (
	"context"
	"fmt"
)

type pending struct {
	collection string
	key        string
	value      []byte
	deleted    bool
}

// Tx is a unit of work against one Store. A Tx must not be used from more
// than one goroutine at a time. Every Tx must end with Commit or Abort so
// its locks are released.
type Tx struct {
	s      *Store
	ctx    context.Context
	writes map[string]map[string]*pending
	order  []*pending
	locked map[string]struct{}
	done   bool
}

// Get reads key without locking. The transaction's own writes are visible.
func (tx *Tx) Get(coll, key string) ([]byte, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	if p, ok := tx.writes[coll][key]; ok {
		if p.deleted {
			return nil, ErrNotFound
		}
		return clone(p.value), nil
	}
	e, ok := tx.s.committed(coll, key)
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e.value), nil
}

// GetForUpdate takes the update lock on key and then reads it. The lock is
// held until the transaction ends, even when the key does not exist.
func (tx *Tx) GetForUpdate(coll, key string) ([]byte, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	if err := tx.lock(coll, key); err != nil {
		return nil, err
	}
	return tx.Get(coll, key)
}

// Set inserts or replaces key.
func (tx *Tx) Set(coll, key string, value []byte) error {
	if tx.done {
		return ErrTxDone
	}
	if err := tx.lock(coll, key); err != nil {
		return err
	}
	tx.put(coll, key, clone(value), false)
	return nil
}

// Add inserts key and fails with ErrKeyExists when it is already present.
func (tx *Tx) Add(coll, key string, value []byte) error {
	if tx.done {
		return ErrTxDone
	}
	if err := tx.lock(coll, key); err != nil {
		return err
	}
	if tx.exists(coll, key) {
		return fmt.Errorf("%s/%s: %w", coll, key, ErrKeyExists)
	}
	tx.put(coll, key, clone(value), false)
	return nil
}

// Remove deletes key and reports whether it existed.
func (tx *Tx) Remove(coll, key string) (bool, error) {
	if tx.done {
		return false, ErrTxDone
	}
	if err := tx.lock(coll, key); err != nil {
		return false, err
	}
	if !tx.exists(coll, key) {
		return false, nil
	}
	tx.put(coll, key, nil, true)
	return true, nil
}

// Count returns the number of keys in coll as seen by this transaction.
func (tx *Tx) Count(coll string) (int, error) {
	if tx.done {
		return 0, ErrTxDone
	}
	n := tx.s.countCommitted(coll)
	for key, p := range tx.writes[coll] {
		_, had := tx.s.committed(coll, key)
		switch {
		case p.deleted && had:
			n--
		case !p.deleted && !had:
			n++
		}
	}
	return n, nil
}

// ScanAll returns every key of coll in insertion order. Keys added by this
// transaction come last, in the order they were written.
func (tx *Tx) ScanAll(coll string) ([]KV, error) {
	if tx.done {
		return nil, ErrTxDone
	}
	committed := tx.s.scanCommitted(coll)
	own := tx.writes[coll]

	out := make([]KV, 0, len(committed)+len(own))
	seen := make(map[string]struct{}, len(own))
	for _, kv := range committed {
		if p, ok := own[kv.Key]; ok {
			seen[kv.Key] = struct{}{}
			if p.deleted {
				continue
			}
			kv.Value = p.value
		}
		out = append(out, KV{Key: kv.Key, Value: clone(kv.Value)})
	}
	for _, p := range tx.order {
		if p.collection != coll || p.deleted {
			continue
		}
		if _, ok := seen[p.key]; ok {
			continue
		}
		out = append(out, KV{Key: p.key, Value: clone(p.value)})
	}
	return out, nil
}

// Commit makes every write of the transaction visible at once and releases
// its locks. A journal failure leaves the store unchanged.
func (tx *Tx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	defer tx.release()

	if len(tx.order) == 0 {
		return nil
	}

	muts := make([]Mutation, 0, len(tx.order))
	for _, p := range tx.order {
		muts = append(muts, Mutation{
			Collection: p.collection,
			Key:        p.key,
			Value:      p.value,
			Deleted:    p.deleted,
		})
	}
	return tx.s.commit(tx.ctx, muts)
}

// Abort discards the transaction's writes. It is safe to call after Commit.
func (tx *Tx) Abort() {
	if tx.done {
		return
	}
	tx.done = true
	tx.release()
}

func (tx *Tx) exists(coll, key string) bool {
	if p, ok := tx.writes[coll][key]; ok {
		return !p.deleted
	}
	_, ok := tx.s.committed(coll, key)
	return ok
}

func (tx *Tx) put(coll, key string, value []byte, deleted bool) {
	byKey, ok := tx.writes[coll]
	if !ok {
		byKey = make(map[string]*pending)
		tx.writes[coll] = byKey
	}
	if p, ok := byKey[key]; ok {
		p.value = value
		p.deleted = deleted
		return
	}
	p := &pending{collection: coll, key: key, value: value, deleted: deleted}
	byKey[key] = p
	tx.order = append(tx.order, p)
}

func (tx *Tx) lock(coll, key string) error {
	id := coll + "\x00" + key
	if _, ok := tx.locked[id]; ok {
		return nil
	}
	if err := tx.s.locks.acquire(tx.ctx, id, tx.s.lockTimeout); err != nil {
		return fmt.Errorf("lock %s/%s: %w", coll, key, err)
	}
	tx.locked[id] = struct{}{}
	return nil
}

func (tx *Tx) release() {
	for id := range tx.locked {
		tx.s.locks.release(id)
	}
	tx.locked = nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

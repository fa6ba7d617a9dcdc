// Copyright (C) 2025 harvest contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerDB key prefixes for the fast-lookup side index, keyed by
// session id. The filesystem layout (cache.go) remains the sole source
// of truth; this index only accelerates lookups and is rebuildable
// from the filesystem at any time.
const (
	keyPrefixMeta = "cache:meta:"
	keyPrefixHash = "cache:hash:"
	keyList       = "cache:list"
)

// Index is the BadgerDB-backed fast-lookup side index over cached
// session metadata and per-artifact content hashes.
type Index struct {
	db *badger.DB
}

// OpenIndex opens (or creates) a BadgerDB index at dir.
func OpenIndex(dir string) (*Index, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening cache index: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the underlying BadgerDB handle.
func (i *Index) Close() error {
	return i.db.Close()
}

// Put records metadata and per-artifact content hashes for a session,
// and adds the id to the listing set.
func (i *Index) Put(id string, meta Metadata, hashes map[ArtifactKind]string) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling cache metadata: %w", err)
	}
	return i.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keyPrefixMeta+id), metaJSON); err != nil {
			return err
		}
		for kind, hash := range hashes {
			key := fmt.Sprintf("%s%s:%s", keyPrefixHash, id, kind)
			if err := txn.Set([]byte(key), []byte(hash)); err != nil {
				return err
			}
		}
		return txn.Set([]byte(keyList+":"+id), []byte{1})
	})
}

// Get returns the indexed metadata for id, if present.
func (i *Index) Get(id string) (*Metadata, bool, error) {
	var meta Metadata
	found := false
	err := i.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefixMeta + id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return &meta, true, nil
}

// ContentHash returns the recorded SHA256 hash for one artifact of a
// session, if the index has one.
func (i *Index) ContentHash(id string, kind ArtifactKind) (string, bool, error) {
	var hash string
	found := false
	err := i.db.View(func(txn *badger.Txn) error {
		key := fmt.Sprintf("%s%s:%s", keyPrefixHash, id, kind)
		item, err := txn.Get([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			hash = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false, err
	}
	return hash, found, nil
}

// List returns every session id the index knows about.
func (i *Index) List() ([]string, error) {
	var ids []string
	err := i.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyList + ":")
		it := txn.NewIterator(opts)
		defer it.Close()
		prefixLen := len(keyList) + 1
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, key[prefixLen:])
		}
		return nil
	})
	return ids, err
}

// Delete removes every indexed key for id.
func (i *Index) Delete(id string) error {
	return i.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(keyPrefixMeta + id)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Delete([]byte(keyList + ":" + id)); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		for _, kind := range []ArtifactKind{ArtifactHAR, ArtifactCookies, ArtifactGenerated, ArtifactMetadata} {
			key := fmt.Sprintf("%s%s:%s", keyPrefixHash, id, kind)
			if err := txn.Delete([]byte(key)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
}

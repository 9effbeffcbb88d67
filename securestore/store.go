// Package securestore implements the secure credential store: a small,
// fixed set of string values sealed with AES-256-GCM and persisted in a
// storage.Repository.
//
// Each value is sealed with a random data key. The data key is itself
// sealed with an externally supplied wrapping key before it is stored, so
// the repository contents alone reveal nothing. While the store is open the
// data key lives in a memguard enclave.
package securestore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/ironsession/internal/util"
	"github.com/jmcleod/ironsession/storage"
)

const (
	defaultNamespace   = "__credentials"
	itemRecordType     = "SECURE_ITEM"
	dataKeyRecordType  = "STORE_KEY"
	dataKeyID          = "current"
	dataKeyWrappingAAD = "ironsession:store_data_key:v1"
	itemAADPrefix      = "securestore:"
)

// Store is the secure credential store. It is safe for concurrent use.
type Store struct {
	repo      storage.Repository
	namespace string

	mu      sync.RWMutex
	dataKey *memguard.Enclave
}

// Option configures a Store.
type Option func(*Store)

// WithNamespace isolates the store's records under the given repository
// namespace. Default: "__credentials".
func WithNamespace(namespace string) Option {
	return func(s *Store) {
		s.namespace = namespace
	}
}

// Open returns a store backed by repo. The wrappingKey (32 bytes) seals the
// data key at rest and is never written to the repository.
//
// If a data key exists but cannot be unsealed with wrappingKey (the device
// secret or passphrase changed), a new data key is generated and every value
// sealed under the old one is discarded.
func Open(repo storage.Repository, wrappingKey []byte, opts ...Option) (*Store, error) {
	if len(wrappingKey) != util.AESKeySize {
		return nil, fmt.Errorf("wrapping key must be exactly %d bytes, got %d", util.AESKeySize, len(wrappingKey))
	}
	s := &Store{repo: repo, namespace: defaultNamespace}
	for _, opt := range opts {
		opt(s)
	}

	key, err := s.loadOrCreateDataKey(wrappingKey)
	if err != nil {
		return nil, err
	}
	s.dataKey = memguard.NewEnclave(key)
	return s, nil
}

// Close drops the store's reference to the data key enclave. Further calls
// fail with ErrClosed. The enclave is sealed under memguard's session key and
// its memory is released when it is collected or memguard.Purge is called.
func (s *Store) Close() {
	s.mu.Lock()
	s.dataKey = nil
	s.mu.Unlock()
}

// Get returns the value stored under key. ok is false when nothing is stored.
func (s *Store) Get(ctx context.Context, key Key) (value string, ok bool, err error) {
	if err := s.check(ctx, key); err != nil {
		return "", false, err
	}
	env, err := s.repo.Get(s.namespace, itemRecordType, string(key))
	if isAbsent(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}

	var data []byte
	err = s.withDataKey(func(dataKey []byte) error {
		var openErr error
		data, openErr = storage.OpenRecord(dataKey, env, itemAAD(s.namespace, key))
		return openErr
	})
	if errors.Is(err, ErrClosed) {
		return "", false, err
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w: %v", key, ErrUnreadable, err)
	}
	defer util.WipeBytes(data)
	return string(data), true, nil
}

// Set seals value and stores it under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key Key, value string) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}
	plaintext := []byte(value)
	defer util.WipeBytes(plaintext)

	var env *storage.Envelope
	err := s.withDataKey(func(dataKey []byte) error {
		var sealErr error
		env, sealErr = storage.SealRecord(dataKey, plaintext, itemAAD(s.namespace, key))
		return sealErr
	})
	if err != nil {
		return fmt.Errorf("sealing %s: %w", key, err)
	}
	if err := s.repo.Put(s.namespace, itemRecordType, string(key), env); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes the value stored under key. Deleting an absent key is not
// an error.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}
	if err := s.repo.Delete(s.namespace, itemRecordType, string(key)); err != nil && !isAbsent(err) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// SetAll seals every value and stores them in one atomic batch. Either all
// values are replaced or none are.
func (s *Store) SetAll(ctx context.Context, values map[Key]string) error {
	for key := range values {
		if err := s.check(ctx, key); err != nil {
			return err
		}
	}
	sealed := make(map[Key]*storage.Envelope, len(values))
	err := s.withDataKey(func(dataKey []byte) error {
		for key, value := range values {
			plaintext := []byte(value)
			env, sealErr := storage.SealRecord(dataKey, plaintext, itemAAD(s.namespace, key))
			util.WipeBytes(plaintext)
			if sealErr != nil {
				return fmt.Errorf("sealing %s: %w", key, sealErr)
			}
			sealed[key] = env
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.repo.Batch(s.namespace, func(tx storage.BatchTx) error {
		for key, env := range sealed {
			if err := tx.Put(itemRecordType, string(key), env); err != nil {
				return fmt.Errorf("writing %s: %w", key, err)
			}
		}
		return nil
	})
}

// DeleteAll removes every given key in one atomic batch. Absent keys are skipped.
func (s *Store) DeleteAll(ctx context.Context, keys ...Key) error {
	for _, key := range keys {
		if err := s.check(ctx, key); err != nil {
			return err
		}
	}
	err := s.repo.Batch(s.namespace, func(tx storage.BatchTx) error {
		for _, key := range keys {
			if err := tx.Delete(itemRecordType, string(key)); err != nil && !isAbsent(err) {
				return fmt.Errorf("deleting %s: %w", key, err)
			}
		}
		return nil
	})
	return err
}

// Present lists the keys that currently hold a value, in Keys() order.
func (s *Store) Present(ctx context.Context) ([]Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, err := s.repo.List(s.namespace, itemRecordType)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	var present []Key
	for _, key := range allKeys {
		if slices.Contains(ids, string(key)) {
			present = append(present, key)
		}
	}
	return present, nil
}

func (s *Store) check(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !key.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKey, string(key))
	}
	return nil
}

func (s *Store) withDataKey(fn func(dataKey []byte) error) error {
	s.mu.RLock()
	enclave := s.dataKey
	s.mu.RUnlock()
	if enclave == nil {
		return ErrClosed
	}
	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("opening data key enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

// loadOrCreateDataKey unseals the persisted data key, or generates, seals
// and persists a new one.
func (s *Store) loadOrCreateDataKey(wrappingKey []byte) ([]byte, error) {
	aad := []byte(dataKeyWrappingAAD)

	env, err := s.repo.Get(s.namespace, dataKeyRecordType, dataKeyID)
	if err != nil && !isAbsent(err) {
		return nil, fmt.Errorf("reading data key: %w", err)
	}
	if err == nil {
		key, openErr := storage.OpenRecord(wrappingKey, env, aad)
		if openErr == nil && len(key) == util.AESKeySize {
			return key, nil
		}
		// Wrong wrapping key or corrupt record. Values sealed under the old
		// key can never be opened again, so drop them with the key.
		return s.rotateDataKey(wrappingKey, env.Version)
	}

	key, err := util.NewAESKey()
	if err != nil {
		return nil, err
	}
	sealed, err := storage.SealRecord(wrappingKey, key, aad, 1)
	if err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("sealing new data key: %w", err)
	}
	if err := s.repo.PutCAS(s.namespace, dataKeyRecordType, dataKeyID, 0, sealed); err != nil {
		util.WipeBytes(key)
		if errors.Is(err, storage.ErrCASFailed) {
			// Another opener created the key first.
			return s.loadOrCreateDataKey(wrappingKey)
		}
		return nil, fmt.Errorf("persisting data key: %w", err)
	}
	return key, nil
}

func (s *Store) rotateDataKey(wrappingKey []byte, previousVersion uint64) ([]byte, error) {
	key, err := util.NewAESKey()
	if err != nil {
		return nil, err
	}
	sealed, err := storage.SealRecord(wrappingKey, key, []byte(dataKeyWrappingAAD), previousVersion+1)
	if err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("sealing replacement data key: %w", err)
	}
	ids, err := s.repo.List(s.namespace, itemRecordType)
	if err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("listing stale values: %w", err)
	}
	err = s.repo.Batch(s.namespace, func(tx storage.BatchTx) error {
		for _, id := range ids {
			if err := tx.Delete(itemRecordType, id); err != nil && !isAbsent(err) {
				return err
			}
		}
		return tx.Put(dataKeyRecordType, dataKeyID, sealed)
	})
	if err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("replacing data key: %w", err)
	}
	return key, nil
}

func itemAAD(namespace string, key Key) []byte {
	return []byte(itemAADPrefix + namespace + ":" + string(key))
}

func isAbsent(err error) bool {
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNamespaceNotFound)
}

// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/selvedge/tessera/internal/engine"
)

// Key layout. Every key starts with the tenant so a misrouted iteration can
// never cross tenants:
//
//	t:<tenant>:act:<stamp>            activity, time-ordered
//	t:<tenant>:actu:<usegment><stamp> activity, per-user index
//	t:<tenant>:imp:<stamp>            impression, time-ordered
//	t:<tenant>:impu:<usegment><stamp> impression, per-user index
//	t:<tenant>:prod:<id>              product document
//
// <stamp> is a zero-padded unix-nano timestamp plus a short random suffix,
// so keys sort chronologically and reverse iteration yields newest first.
// <usegment> is the user id length-prefixed as <len>:<user>:, so a user id
// containing a colon cannot alias another user's prefix.
type Badger struct {
	db     *badger.DB
	logger zerolog.Logger
}

// BadgerOptions tunes the Badger store.
type BadgerOptions struct {
	Path       string
	SyncWrites bool
	// InMemory is for tests; Path is ignored when set.
	InMemory bool
}

// NewBadger opens (or creates) the Badger database.
func NewBadger(opts BadgerOptions, logger zerolog.Logger) (*Badger, error) {
	bo := badger.DefaultOptions(opts.Path).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(nil)
	if opts.InMemory {
		bo = bo.WithInMemory(true).WithDir("").WithValueDir("")
	}
	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %s: %w", opts.Path, err)
	}
	return &Badger{db: db, logger: logger.With().Str("component", "storage").Logger()}, nil
}

// Close releases the database.
func (b *Badger) Close() error { return b.db.Close() }

// RunGC runs one value-log garbage collection pass. Intended to be called
// periodically by a supervised service.
func (b *Badger) RunGC() error {
	err := b.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}

func stamp(at time.Time) string {
	return fmt.Sprintf("%020d:%s", at.UnixNano(), uuid.NewString()[:8])
}

// userSegment is self-delimiting: the decimal length field cannot contain a
// colon, so the segment for one user id is never a prefix of another's.
func userSegment(user string) string {
	return fmt.Sprintf("%d:%s:", len(user), user)
}

func actKey(tenant, s string) []byte { return []byte("t:" + tenant + ":act:" + s) }
func actuKey(tenant, user, s string) []byte {
	return []byte("t:" + tenant + ":actu:" + userSegment(user) + s)
}
func impKey(tenant, s string) []byte { return []byte("t:" + tenant + ":imp:" + s) }
func impuKey(tenant, user, s string) []byte {
	return []byte("t:" + tenant + ":impu:" + userSegment(user) + s)
}
func prodKey(tenant, id string) []byte { return []byte("t:" + tenant + ":prod:" + id) }

// AppendActivity implements engine.Store. The document is written under both
// the time-ordered key and the per-user index key in one transaction.
func (b *Badger) AppendActivity(ctx context.Context, tenant string, act engine.Activity) error {
	data, err := json.Marshal(act)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	s := stamp(act.At)
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(actKey(tenant, s), data); err != nil {
			return fmt.Errorf("store activity: %w", err)
		}
		if err := txn.Set(actuKey(tenant, act.UserID, s), data); err != nil {
			return fmt.Errorf("store activity user index: %w", err)
		}
		return nil
	})
}

// AppendImpression implements engine.Store.
func (b *Badger) AppendImpression(ctx context.Context, tenant string, imp engine.Impression) error {
	data, err := json.Marshal(imp)
	if err != nil {
		return fmt.Errorf("marshal impression: %w", err)
	}
	s := stamp(imp.At)
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(impKey(tenant, s), data); err != nil {
			return fmt.Errorf("store impression: %w", err)
		}
		if err := txn.Set(impuKey(tenant, imp.UserID, s), data); err != nil {
			return fmt.Errorf("store impression user index: %w", err)
		}
		return nil
	})
}

// scanReverse iterates all values under prefix newest-first and hands each
// raw document to fn.
func (b *Badger) scanReverse(prefix []byte, fn func(val []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible key under the prefix.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Badger) loadActivities(prefix []byte) ([]engine.Activity, error) {
	var out []engine.Activity
	err := b.scanReverse(prefix, func(val []byte) error {
		var act engine.Activity
		if err := json.Unmarshal(val, &act); err != nil {
			return fmt.Errorf("unmarshal activity: %w", err)
		}
		out = append(out, act)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Badger) loadImpressions(prefix []byte) ([]engine.Impression, error) {
	var out []engine.Impression
	err := b.scanReverse(prefix, func(val []byte) error {
		var imp engine.Impression
		if err := json.Unmarshal(val, &imp); err != nil {
			return fmt.Errorf("unmarshal impression: %w", err)
		}
		out = append(out, imp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ActivitiesByUser implements engine.Store.
func (b *Badger) ActivitiesByUser(ctx context.Context, tenant, userID string) ([]engine.Activity, error) {
	return b.loadActivities([]byte("t:" + tenant + ":actu:" + userSegment(userID)))
}

// Activities implements engine.Store.
func (b *Badger) Activities(ctx context.Context, tenant string) ([]engine.Activity, error) {
	return b.loadActivities([]byte("t:" + tenant + ":act:"))
}

// ImpressionsByUser implements engine.Store.
func (b *Badger) ImpressionsByUser(ctx context.Context, tenant, userID string) ([]engine.Impression, error) {
	return b.loadImpressions([]byte("t:" + tenant + ":impu:" + userSegment(userID)))
}

// Impressions implements engine.Store.
func (b *Badger) Impressions(ctx context.Context, tenant string) ([]engine.Impression, error) {
	return b.loadImpressions([]byte("t:" + tenant + ":imp:"))
}

// UpsertProduct implements engine.Store.
func (b *Badger) UpsertProduct(ctx context.Context, tenant string, p engine.Product) error {
	if p.ID == "" {
		return fmt.Errorf("product id is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(prodKey(tenant, p.ID), data)
	})
}

// Product implements engine.Store.
func (b *Badger) Product(ctx context.Context, tenant, id string) (engine.Product, error) {
	var p engine.Product
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prodKey(tenant, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return engine.ErrProductNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if err != nil {
		return engine.Product{}, err
	}
	return p, nil
}

// DeleteProduct implements engine.Store.
func (b *Badger) DeleteProduct(ctx context.Context, tenant, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		key := prodKey(tenant, id)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return engine.ErrProductNotFound
		} else if err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

// Products implements engine.Store.
func (b *Badger) Products(ctx context.Context, tenant string) ([]engine.Product, error) {
	prefix := []byte("t:" + tenant + ":prod:")
	var out []engine.Product
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var p engine.Product
				if err := json.Unmarshal(val, &p); err != nil {
					return fmt.Errorf("unmarshal product: %w", err)
				}
				out = append(out, p)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

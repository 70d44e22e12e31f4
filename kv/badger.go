package kv

import (
	"context"
	"sync"
	"time"

	badgerv2 "github.com/dgraph-io/badger/v2"
	"github.com/dgraph-io/badger/v2/options"
)

// badgerOptions mirrors the teacher's models/dps.DefaultOptions,
// tuned for a small ephemeral TTL-only index rather than a
// multi-gigabyte ledger.
func badgerOptions(dir string) badgerv2.Options {
	return badgerv2.DefaultOptions(dir).
		WithTableLoadingMode(options.FileIO).
		WithValueLogLoadingMode(options.FileIO).
		WithNumMemtables(1).
		WithKeepL0InMemory(false).
		WithCompactL0OnClose(false).
		WithNumLevelZeroTables(1).
		WithNumLevelZeroTablesStall(2).
		WithLoadBloomsOnOpen(false).
		WithLogger(nil)
}

// Badger is the embedded, single-process Store backend used when no
// redisUrl is configured. Pub/sub is emulated in-process since Badger
// has no channel primitive; every SSE consumer that might fan out
// across processes must still tolerate a dropped message (spec.md
// section 4.4/4.9 polling fallback) so this is safe.
type Badger struct {
	db *badgerv2.DB

	mu    sync.RWMutex
	subs  map[string][]chan Message
}

// NewBadger opens (creating if absent) a Badger index at dir.
func NewBadger(dir string) (*Badger, error) {
	db, err := badgerv2.Open(badgerOptions(dir))
	if err != nil {
		return nil, err
	}
	b := &Badger{db: db, subs: make(map[string][]chan Message)}
	go b.gcLoop()
	return b, nil
}

func (b *Badger) gcLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		_ = b.db.RunValueLogGC(0.5)
	}
}

func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badgerv2.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if err == badgerv2.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	return out, err
}

func (b *Badger) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return b.db.Update(func(txn *badgerv2.Txn) error {
		entry := badgerv2.NewEntry([]byte(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (b *Badger) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	exists, err := b.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	return true, b.Set(ctx, key, value, ttl)
}

func (b *Badger) Del(_ context.Context, key string) error {
	return b.db.Update(func(txn *badgerv2.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *Badger) Exists(_ context.Context, key string) (bool, error) {
	found := false
	err := b.db.View(func(txn *badgerv2.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == badgerv2.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// list is the CBOR-encoded envelope backing a list key, since Badger
// has no native list type.
type list struct {
	Items [][]byte
}

func (b *Badger) loadList(txn *badgerv2.Txn, key string) (list, error) {
	var l list
	item, err := txn.Get([]byte(key))
	if err == badgerv2.ErrKeyNotFound {
		return l, nil
	}
	if err != nil {
		return l, err
	}
	err = item.Value(func(val []byte) error {
		return Decode(val, &l)
	})
	return l, err
}

func (b *Badger) LPush(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return b.db.Update(func(txn *badgerv2.Txn) error {
		l, err := b.loadList(txn, key)
		if err != nil {
			return err
		}
		l.Items = append([][]byte{value}, l.Items...)
		enc, err := Encode(l)
		if err != nil {
			return err
		}
		entry := badgerv2.NewEntry([]byte(key), enc)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (b *Badger) RPop(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.Update(func(txn *badgerv2.Txn) error {
		l, err := b.loadList(txn, key)
		if err != nil {
			return err
		}
		if len(l.Items) == 0 {
			return ErrNotFound
		}
		out = l.Items[len(l.Items)-1]
		l.Items = l.Items[:len(l.Items)-1]
		enc, err := Encode(l)
		if err != nil {
			return err
		}
		return txn.Set([]byte(key), enc)
	})
	return out, err
}

func (b *Badger) LRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	var out [][]byte
	err := b.db.View(func(txn *badgerv2.Txn) error {
		l, err := b.loadList(txn, key)
		if err != nil {
			return err
		}
		n := int64(len(l.Items))
		if n == 0 {
			return nil
		}
		if stop < 0 || stop >= n {
			stop = n - 1
		}
		if start < 0 {
			start = 0
		}
		if start > stop {
			return nil
		}
		out = append(out, l.Items[start:stop+1]...)
		return nil
	})
	return out, err
}

func (b *Badger) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- Message{Channel: channel, Payload: payload}:
		default:
			// Slow subscriber: drop rather than block the publisher.
			// Safe because every consumer has a polling fallback.
		}
	}
	return nil
}

type badgerSubscription struct {
	b       *Badger
	channel string
	ch      chan Message
}

func (b *Badger) Subscribe(_ context.Context, channel string) (Subscription, error) {
	ch := make(chan Message, 32)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	return &badgerSubscription{b: b, channel: channel, ch: ch}, nil
}

func (s *badgerSubscription) Channel() <-chan Message { return s.ch }

func (s *badgerSubscription) Close() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	list := s.b.subs[s.channel]
	for i, ch := range list {
		if ch == s.ch {
			s.b.subs[s.channel] = append(list[:i], list[i+1:]...)
			close(ch)
			break
		}
	}
	return nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmerrifield20/opengov/internal/model"
	"go.uber.org/zap"
)

// Collection is an ordered sequence of records serialized as one JSON array
// under a single key.
//
// Elements are decoded one at a time. An element that does not decode into T
// is skipped on read and carried through Update untouched, in its original
// position, so one bad record never costs the rest of the collection.
type Collection[T any] struct {
	store  Store
	key    string
	logger *zap.Logger
}

// NewCollection binds a collection to key in s.
func NewCollection[T any](s Store, key string, logger *zap.Logger) *Collection[T] {
	return &Collection[T]{store: s, key: key, logger: logger}
}

// Key returns the substrate key.
func (c *Collection[T]) Key() string { return c.key }

// slot is one stored element: either decoded, or kept as the raw bytes it
// was read as.
type slot struct {
	decoded bool
	raw     json.RawMessage
}

// Load returns the decodable records. An absent key, or content whose top
// level is not a JSON array, loads as an empty collection. Only a failure to
// reach the backend is an error, wrapped in model.ErrStorage.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	items, _, err := c.read(ctx)
	return items, err
}

// Update loads the collection, passes the decodable records to fn and writes
// fn's result back. Records keep their relative order; records fn appends go
// after every existing element. Elements that did not decode are written
// back unchanged where they were.
func (c *Collection[T]) Update(ctx context.Context, fn func([]T) ([]T, error)) error {
	items, slots, err := c.read(ctx)
	if err != nil {
		return err
	}
	next, err := fn(items)
	if err != nil {
		return err
	}

	out := make([]json.RawMessage, 0, len(slots)+len(next))
	for _, s := range slots {
		if !s.decoded {
			out = append(out, s.raw)
			continue
		}
		if len(next) == 0 {
			continue
		}
		raw, err := json.Marshal(next[0])
		if err != nil {
			return fmt.Errorf("%w: encode %s: %v", model.ErrStorage, c.key, err)
		}
		out = append(out, raw)
		next = next[1:]
	}
	for _, item := range next {
		raw, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("%w: encode %s: %v", model.ErrStorage, c.key, err)
		}
		out = append(out, raw)
	}
	return c.write(ctx, out)
}

// Save replaces the stored records, discarding any undecodable elements.
func (c *Collection[T]) Save(ctx context.Context, items []T) error {
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("%w: encode %s: %v", model.ErrStorage, c.key, err)
		}
		out = append(out, raw)
	}
	return c.write(ctx, out)
}

func (c *Collection[T]) read(ctx context.Context) ([]T, []slot, error) {
	raw, err := c.store.Get(ctx, c.key)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load %s: %v", model.ErrStorage, c.key, err)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		c.logger.Warn("discarding unparsable collection",
			zap.String("key", c.key),
			zap.Int("bytes", len(raw)),
			zap.Error(err),
		)
		return nil, nil, nil
	}

	items := make([]T, 0, len(elems))
	slots := make([]slot, 0, len(elems))
	for i, elem := range elems {
		if bytes.Equal(bytes.TrimSpace(elem), []byte("null")) {
			continue
		}
		var item T
		if err := json.Unmarshal(elem, &item); err != nil {
			c.logger.Warn("skipping undecodable record",
				zap.String("key", c.key),
				zap.Int("index", i),
				zap.Error(err),
			)
			slots = append(slots, slot{raw: elem})
			continue
		}
		items = append(items, item)
		slots = append(slots, slot{decoded: true})
	}
	return items, slots, nil
}

func (c *Collection[T]) write(ctx context.Context, elems []json.RawMessage) error {
	raw, err := json.Marshal(elems)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", model.ErrStorage, c.key, err)
	}
	if err := c.store.Set(ctx, c.key, raw); err != nil {
		return fmt.Errorf("%w: save %s: %v", model.ErrStorage, c.key, err)
	}
	return nil
}

// Package nvs implements the typed key-value store: namespace-scoped typed
// entries inside a flash region.
//
// The on-flash form is an append-only record log. Record state bytes move
// only through bit-clearing transitions (free -> pending -> active ->
// deleted), so Set and Delete never erase; a region serves mutations until
// its erased space runs out, after which it must be cleared wholesale.
package nvs

import (
	"fmt"

	"github.com/FL0WL0W/ESPRecovery/flash"
	"github.com/FL0WL0W/ESPRecovery/internal/format"
	"github.com/FL0WL0W/ESPRecovery/pkg/types"
)

// Store provides key-value operations over regions of one device. The zero
// Store is not usable; construct with New. A Store holds no per-region
// state: every operation scans the log it targets.
type Store struct {
	dev flash.Device
}

func New(dev flash.Device) *Store {
	return &Store{dev: dev}
}

// Get returns the live entry for namespace/key, value rendered for the
// boundary, or ErrNotFound.
func (s *Store) Get(region types.Region, namespace, key string) (types.KVEntry, error) {
	var found *record
	err := s.scan(region, func(rec record) bool {
		if rec.active() && rec.ns == namespace && rec.key == key {
			r := rec
			found = &r
		}
		return false
	})
	if err != nil {
		return types.KVEntry{}, err
	}
	if found == nil {
		return types.KVEntry{}, types.WrapErr(types.ErrNotFound,
			fmt.Errorf("%s/%s in region %q", namespace, key, region.Label))
	}
	return entryOf(*found), nil
}

// Set durably writes namespace/key = value with the declared type. The new
// record is programmed and synced before any superseded record is marked
// deleted, so power loss leaves either the old or the new value live.
func (s *Store) Set(region types.Region, namespace, key string, typ types.KVType, value string) error {
	if err := checkName("namespace", namespace); err != nil {
		return err
	}
	if err := checkName("key", key); err != nil {
		return err
	}
	val, err := EncodeValue(typ, value)
	if err != nil {
		return err
	}

	prev, end, err := s.locate(region, namespace, key)
	if err != nil {
		return err
	}
	rec := buildRecord(typ, namespace, key, val)
	if end+int64(len(rec)) > region.Size {
		return types.WrapErr(types.ErrStoreFull,
			fmt.Errorf("region %q: %d bytes free, record needs %d", region.Label, region.Size-end, len(rec)))
	}

	if err := s.dev.Program(region.Offset+end, rec); err != nil {
		return types.WrapErr(types.ErrProgramFailed, err)
	}
	if err := s.dev.Sync(); err != nil {
		return types.WrapErr(types.ErrProgramFailed, fmt.Errorf("sync: %w", err))
	}
	if err := s.setState(region, end, format.RecStateActive); err != nil {
		return err
	}
	if prev != nil {
		if err := s.setState(region, prev.off, format.RecStateDeleted); err != nil {
			return err
		}
	}
	return nil
}

// Delete marks the live record for namespace/key deleted, or ErrNotFound.
func (s *Store) Delete(region types.Region, namespace, key string) error {
	prev, _, err := s.locate(region, namespace, key)
	if err != nil {
		return err
	}
	if prev == nil {
		return types.WrapErr(types.ErrNotFound,
			fmt.Errorf("%s/%s in region %q", namespace, key, region.Label))
	}
	return s.setState(region, prev.off, format.RecStateDeleted)
}

// All returns a lazy iterator over the live entries of region in storage
// order. The order is stable for an unmodified store; call All again to
// restart.
func (s *Store) All(region types.Region) *Iterator {
	return &Iterator{s: s, region: region}
}

// Iterator walks a region's record log.
type Iterator struct {
	s      *Store
	region types.Region
	off    int64
	done   bool
}

// Next returns the next live entry. ok=false with a nil error means the
// sequence is exhausted.
func (it *Iterator) Next() (types.KVEntry, bool, error) {
	for !it.done {
		rec, ok, err := readRecord(it.s.dev, it.region, it.off)
		if err != nil {
			it.done = true
			return types.KVEntry{}, false, err
		}
		if !ok {
			it.done = true
			return types.KVEntry{}, false, nil
		}
		it.off = rec.end
		if rec.active() {
			return entryOf(rec), true, nil
		}
	}
	return types.KVEntry{}, false, nil
}

// scan walks every record; fn returning true stops early.
func (s *Store) scan(region types.Region, fn func(record) bool) error {
	off := int64(0)
	for {
		rec, ok, err := readRecord(s.dev, region, off)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if fn(rec) {
			return nil
		}
		off = rec.end
	}
}

// locate finds the live record for namespace/key (nil when absent) and the
// end of the log, where the next record would be programmed.
func (s *Store) locate(region types.Region, namespace, key string) (*record, int64, error) {
	var prev *record
	end := int64(0)
	err := s.scan(region, func(rec record) bool {
		end = rec.end
		if rec.active() && rec.ns == namespace && rec.key == key {
			r := rec
			prev = &r
		}
		return false
	})
	if err != nil {
		return nil, 0, err
	}
	return prev, end, nil
}

// setState programs a record's state byte and syncs.
func (s *Store) setState(region types.Region, recOff int64, state byte) error {
	if err := s.dev.Program(region.Offset+recOff+format.KVStateOff, []byte{state}); err != nil {
		return types.WrapErr(types.ErrProgramFailed, err)
	}
	if err := s.dev.Sync(); err != nil {
		return types.WrapErr(types.ErrProgramFailed, fmt.Errorf("sync: %w", err))
	}
	return nil
}

func entryOf(rec record) types.KVEntry {
	return types.KVEntry{
		Namespace: rec.ns,
		Key:       rec.key,
		Type:      rec.typ,
		Value:     FormatValue(rec.typ, rec.val),
	}
}

func checkName(what, v string) error {
	if len(v) == 0 || len(v) > 255 {
		return &types.Error{
			Kind: types.ErrKindValidation,
			Msg:  fmt.Sprintf("%s must be 1..255 bytes, got %d", what, len(v)),
		}
	}
	return nil
}

// Package migration copies local session state from one storage driver to
// another so switching storage.driver does not sign the device out.
package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rshade/finsync/internal/localstore"
)

// ErrSameLocation is returned when source and destination are the same store.
var ErrSameLocation = errors.New("source and destination are the same")

// StateKeys are the keys that make up a device's local state.
//
//nolint:gochecknoglobals // Read-only key list.
var StateKeys = []string{localstore.KeySession, localstore.KeyUserData}

// Location names a store by driver and path.
type Location struct {
	Driver string
	Path   string
}

func (l Location) String() string {
	driver := l.Driver
	if driver == "" {
		driver = localstore.DriverFile
	}
	return driver + ":" + l.Path
}

// Result reports which keys were copied and which had nothing to copy.
type Result struct {
	Copied  []string
	Missing []string
}

// Copy copies keys from src to dst as raw JSON. The source is never modified.
// Keys absent from src are left untouched in dst.
func Copy(ctx context.Context, src, dst localstore.Store, keys ...string) (Result, error) {
	var res Result
	for _, key := range keys {
		var raw json.RawMessage
		ok, err := src.Load(ctx, key, &raw)
		if err != nil {
			return res, fmt.Errorf("reading %s: %w", key, err)
		}
		if !ok {
			res.Missing = append(res.Missing, key)
			continue
		}
		if err := dst.Save(ctx, key, raw); err != nil {
			return res, fmt.Errorf("writing %s: %w", key, err)
		}
		res.Copied = append(res.Copied, key)
	}
	return res, nil
}

// Run opens both locations and copies StateKeys from one to the other.
func Run(ctx context.Context, from, to Location) (Result, error) {
	if from.String() == to.String() {
		return Result{}, fmt.Errorf("%w: %s", ErrSameLocation, from)
	}

	src, err := localstore.Open(from.Driver, from.Path)
	if err != nil {
		return Result{}, fmt.Errorf("opening %s: %w", from, err)
	}
	defer src.Close()

	dst, err := localstore.Open(to.Driver, to.Path)
	if err != nil {
		return Result{}, fmt.Errorf("opening %s: %w", to, err)
	}
	defer dst.Close()

	res, err := Copy(ctx, src, dst, StateKeys...)
	if err != nil {
		return res, fmt.Errorf("migration failed: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("component", "migration").
		Stringer("from", from).
		Stringer("to", to).
		Strs("copied", res.Copied).
		Msg("local state migrated")
	return res, nil
}

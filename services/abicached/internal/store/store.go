package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/greymass/abicached/libraries/chain"
)

// HeightKey holds the decimal global sequence height.
const HeightKey = "globalSeqHeight"

// Store is one worker's connection to the backing key-value store. A Store
// is used by a single worker at a time but serialises its own commands.
type Store interface {
	Set(ctx context.Context, key string, value []byte) error
	// Get returns found == false for a missing key.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Close() error
}

// Error is a failed store command.
type Error struct {
	Op  string
	Key string
	// Reply is set when the server answered with an error rather than the
	// connection failing.
	Reply bool
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func ABIKey(account chain.Name, version uint32) string {
	return "abi:" + strconv.FormatUint(uint64(account), 10) + ":" + strconv.FormatUint(uint64(version), 10)
}

func FormatHeight(height uint64) []byte {
	return strconv.AppendUint(nil, height, 10)
}

func ParseHeight(value []byte) (uint64, error) {
	return strconv.ParseUint(string(value), 10, 64)
}

// CloseAll closes every store, returning the first error.
func CloseAll(stores []Store) error {
	var first error
	for _, s := range stores {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

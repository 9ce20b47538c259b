// Package idgen issues time-sortable identifiers for ticks and simulated
// transaction references.
package idgen

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string. IDs from one process are strictly increasing.
func New() string {
	return At(time.Now())
}

// At returns a ULID stamped with t.
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), mono)
	if err != nil {
		// Only possible if the monotonic entropy overflows within one ms.
		panic(err)
	}
	return id.String()
}

// Prefixed returns prefix + "-" + New().
func Prefixed(prefix string) string {
	return prefix + "-" + New()
}

// Time extracts the timestamp from a ULID string, after any prefix.
func Time(id string) (time.Time, error) {
	if len(id) > ulid.EncodedSize {
		id = id[len(id)-ulid.EncodedSize:]
	}
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}

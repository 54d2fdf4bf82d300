package ids

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns wall-clock time in UTC.
func SystemClock() Clock { return realClock{} }

type IDGen interface{ New(t time.Time) string }

// ulidGen shares one monotonic entropy source; ulid.Monotonic is not safe for
// concurrent use on its own.
type ulidGen struct {
	mu      sync.Mutex
	entropy io.Reader
}

func NewULIDGen() IDGen {
	return &ulidGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ulidGen) New(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

// Valid reports whether s parses as a ULID.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

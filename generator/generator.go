// Package generator produces the synthetic author, book and test records used by
// the benchmark pipeline.
//
// A Generator owns its random source and the set of ISBNs it has handed out, so
// ISBN uniqueness holds for the lifetime of one Generator and never leaks across
// instances. License codes follow a fixed pattern but are not deduplicated.
package generator

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

const (
	isbnPrefix      = "978"
	isbnDigits      = 10
	isbnMaxAttempts = 10

	letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var (
	languages = []string{
		"English", "Spanish", "French", "German", "Chinese",
		"Japanese", "Russian", "Portuguese", "Italian", "Dutch",
	}
	genres = []string{
		"Fiction", "Non-Fiction", "Science Fiction", "Fantasy", "Mystery", "Thriller",
		"Romance", "Western", "Horror", "Biography", "History", "Academic",
	}
	formats = []string{
		"Hardcover", "Paperback", "E-book", "Audio Book", "Large Print", "Pocket Edition",
	}
	publishers = []string{
		"Penguin", "Random House", "HarperCollins", "Simon & Schuster", "Macmillan",
		"Hachette", "Wiley", "Scholastic", "Oxford University Press",
	}
)

// Generator draws random records. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time

	isbns        map[string]struct{}
	isbnAttempts int
	lastStamp    int64
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes the generator reproducible.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.rnd = rand.New(rand.NewSource(seed))
	}
}

// WithClock replaces the clock used by the ISBN fallback.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// New creates a generator with an empty ISBN set.
func New(opts ...Option) *Generator {
	g := &Generator{
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          time.Now,
		isbns:        make(map[string]struct{}),
		isbnAttempts: isbnMaxAttempts,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RandomNumber returns a uniformly drawn integer in [min, max].
func (g *Generator) RandomNumber(min, max int) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.number(min, max)
}

// RandomText returns n letters drawn from A-Z and a-z.
func (g *Generator) RandomText(n int) (string, error) {
	if n < 0 {
		return "", &GenerationError{Op: "random text", Err: &InvalidRangeError{Min: 0, Max: n}}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.text(n), nil
}

// ISBN returns an ISBN-like code that this generator has never returned before.
func (g *Generator) ISBN() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isbn()
}

// License returns a code shaped LLL-DDDD-LL. Uniqueness is not enforced.
func (g *Generator) License() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.license()
}

// ISBNCount reports how many ISBNs have been handed out.
func (g *Generator) ISBNCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.isbns)
}

// number expects g.mu to be held.
func (g *Generator) number(min, max int) (int, error) {
	if min > max {
		return 0, &GenerationError{Op: "random number", Err: &InvalidRangeError{Min: min, Max: max}}
	}
	return min + g.rnd.Intn(max-min+1), nil
}

// mustNumber is used for the fixed, known-valid ranges of the record fields.
func (g *Generator) mustNumber(min, max int) int {
	n, err := g.number(min, max)
	if err != nil {
		panic(err)
	}
	return n
}

func (g *Generator) text(n int) string {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(letters[g.rnd.Intn(len(letters))])
	}
	return sb.String()
}

func (g *Generator) textBetween(min, max int) string {
	return g.text(g.mustNumber(min, max))
}

func (g *Generator) pick(values []string) string {
	return values[g.rnd.Intn(len(values))]
}

func (g *Generator) isbn() string {
	for attempt := 0; attempt < g.isbnAttempts; attempt++ {
		var sb strings.Builder
		sb.WriteString(isbnPrefix)
		for i := 0; i < isbnDigits; i++ {
			sb.WriteByte(byte('0' + g.rnd.Intn(10)))
		}
		isbn := sb.String()
		if _, taken := g.isbns[isbn]; !taken {
			g.isbns[isbn] = struct{}{}
			return isbn
		}
	}
	return g.fallbackISBN()
}

// fallbackISBN embeds the last ten digits of a millisecond timestamp, kept
// strictly increasing so consecutive fallbacks never repeat.
func (g *Generator) fallbackISBN() string {
	const modulo = 10_000_000_000
	stamp := g.now().UnixMilli() % modulo
	if stamp <= g.lastStamp {
		stamp = g.lastStamp + 1
	}
	for {
		isbn := fmt.Sprintf("%s%010d", isbnPrefix, stamp%modulo)
		if _, taken := g.isbns[isbn]; !taken {
			g.lastStamp = stamp
			g.isbns[isbn] = struct{}{}
			return isbn
		}
		stamp++
	}
}

func (g *Generator) license() string {
	upper := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = byte('A' + g.rnd.Intn(26))
		}
		return string(b)
	}
	return fmt.Sprintf("%s-%d-%s", upper(3), g.mustNumber(1000, 9999), upper(2))
}

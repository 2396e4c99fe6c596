package token

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func fixedClock() time.Time {
	return time.UnixMilli(1700000000000)
}

func TestGenerator_Format(t *testing.T) {
	g := newGenerator("node-a", 42, "deadbeef", fixedClock)

	got := g.Next()
	want := "host=node-a:pid=42:random=deadbeef:time=1700000000000:count=0"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	if next := g.Next(); !strings.HasSuffix(next, ":count=1") {
		t.Fatalf("expected counter to advance, got %q", next)
	}
}

func TestNewGenerator_Salt(t *testing.T) {
	g := NewGenerator()

	if len(g.Salt()) != 8 {
		t.Fatalf("expected 8 character salt, got %q", g.Salt())
	}
	if strings.Trim(g.Salt(), "0123456789abcdef") != "" {
		t.Fatalf("expected hex salt, got %q", g.Salt())
	}
	if g.host == "" {
		t.Fatal("expected host to be set")
	}
}

func TestGenerate_UniqueUnderConcurrency(t *testing.T) {
	const workers = 16
	const perWorker = 500

	// frozen clock: every token is generated "in the same millisecond"
	g := newGenerator("node-a", 1, "00000000", fixedClock)

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for j := 0; j < perWorker; j++ {
				local = append(local, g.Next())
			}
			mu.Lock()
			for _, tok := range local {
				seen[tok] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d unique tokens, got %d", workers*perWorker, len(seen))
	}
}

func TestGenerate_DefaultGenerator(t *testing.T) {
	a := Generate()
	b := Generate()
	if a == b {
		t.Fatalf("expected distinct tokens, got %q twice", a)
	}
	if !strings.Contains(a, "random="+defaultGenerator.Salt()) {
		t.Fatalf("expected default salt in token %q", a)
	}
}

// TestProperty_TokensDifferAcrossSalts verifies that two generators that share
// host, pid and clock but differ in salt never emit the same token.
func TestProperty_TokensDifferAcrossSalts(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genSalt := gen.UInt32().Map(func(v uint32) string {
		return fmt.Sprintf("%08x", v)
	})

	properties.Property("distinct salts never collide", prop.ForAll(
		func(saltA, saltB string, calls int) bool {
			if saltA == saltB {
				return true
			}
			a := newGenerator("h", 1, saltA, fixedClock)
			b := newGenerator("h", 1, saltB, fixedClock)
			seen := make(map[string]struct{}, calls*2)
			for i := 0; i < calls; i++ {
				seen[a.Next()] = struct{}{}
				seen[b.Next()] = struct{}{}
			}
			return len(seen) == calls*2
		},
		genSalt,
		genSalt,
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}

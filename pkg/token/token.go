// Package token generates process-unique probe tokens.
package token

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const unknownHost = "unknown-host"

// Generator produces tokens from a fixed process identity and a monotonically
// increasing counter. It is safe for concurrent use.
type Generator struct {
	host  string
	pid   int
	salt  string
	count atomic.Uint64
	now   func() time.Time
}

var defaultGenerator = NewGenerator()

// NewGenerator creates a generator bound to the current host, process and a
// freshly drawn random salt.
func NewGenerator() *Generator {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = unknownHost
	}
	return newGenerator(host, os.Getpid(), newSalt(), time.Now)
}

func newGenerator(host string, pid int, salt string, now func() time.Time) *Generator {
	return &Generator{
		host: host,
		pid:  pid,
		salt: salt,
		now:  now,
	}
}

// newSalt returns 8 hex characters of a random UUID.
func newSalt() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:8]
}

// Next returns a token that was never returned before by this generator.
func (g *Generator) Next() string {
	n := g.count.Add(1) - 1
	return fmt.Sprintf("host=%s:pid=%d:random=%s:time=%d:count=%d",
		g.host, g.pid, g.salt, g.now().UnixMilli(), n)
}

// Salt returns the random salt fixed for the generator lifetime.
func (g *Generator) Salt() string {
	return g.salt
}

// Generate returns the next token of the process-wide generator.
func Generate() string {
	return defaultGenerator.Next()
}

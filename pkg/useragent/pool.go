package useragent

import (
	"crypto/rand"
	"math/big"
	"sync/atomic"
)

// Default is the desktop Chrome User-Agent sent to Shopee when nothing else
// is configured.
const Default = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"

// Desktop is a set of modern desktop browser User-Agents for callers that opt
// into rotation.
var Desktop = []string{
	Default,
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
}

// Pool hands out User-Agents. A pool of one is a static header.
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// Static returns a pool that always yields ua (or Default when ua is empty).
func Static(ua string) *Pool {
	if ua == "" {
		ua = Default
	}
	return &Pool{uas: []string{ua}}
}

// NewPool creates a rotating pool. An empty slice yields Static(Default).
func NewPool(uas []string) *Pool {
	if len(uas) == 0 {
		return Static(Default)
	}
	copied := make([]string, len(uas))
	copy(copied, uas)
	return &Pool{uas: copied}
}

// Next returns the next User-Agent round-robin. Safe for concurrent use.
func (p *Pool) Next() string {
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// Random returns a random User-Agent from the pool.
func (p *Pool) Random() string {
	if len(p.uas) == 1 {
		return p.uas[0]
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.uas))))
	if err != nil {
		return p.Next()
	}
	return p.uas[n.Int64()]
}

// Len reports how many User-Agents the pool holds.
func (p *Pool) Len() int {
	return len(p.uas)
}

package ledger

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Reference id prefixes.
const (
	PrefixIn      = "IN"
	PrefixOut     = "OUT"
	PrefixPayment = "PAY"
	PrefixExpense = "EXP-"
)

// RefGenerator issues {PREFIX}{epoch-millis} reference ids, or
// {PREFIX}{epoch-millis}-{instance} once an instance is set.
// The millisecond component is strictly increasing per generator only:
// processes writing to one database need distinct instances for their ids
// to stay unique.
type RefGenerator struct {
	mu       sync.Mutex
	last     int64
	now      func() time.Time
	instance string
}

// NewRefGenerator creates a generator backed by the wall clock.
func NewRefGenerator() *RefGenerator {
	return &RefGenerator{now: time.Now}
}

// NewInstanceRefGenerator creates a generator whose ids carry instance.
// An empty instance yields plain {PREFIX}{epoch-millis} ids.
func NewInstanceRefGenerator(instance string) *RefGenerator {
	return &RefGenerator{now: time.Now, instance: instance}
}

func (g *RefGenerator) stamp() string {
	ts := strconv.FormatInt(g.tick(), 10)
	if g.instance == "" {
		return ts
	}
	return ts + "-" + g.instance
}

func (g *RefGenerator) tick() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return ms
}

// Next returns a fresh id with the given prefix.
func (g *RefGenerator) Next(prefix string) string {
	return prefix + g.stamp()
}

// Pair returns the OUT and IN ids of a transfer. Both share one timestamp.
func (g *RefGenerator) Pair() (out, in string) {
	ts := g.stamp()
	return PrefixOut + ts, PrefixIn + ts
}

// ExpenseRef is the reference id of the OUT entry posted for an expense.
func ExpenseRef(expenseID string) string {
	return PrefixExpense + expenseID
}

// IsExpenseRef reports whether ref was produced by ExpenseRef.
func IsExpenseRef(ref string) bool {
	return strings.HasPrefix(ref, PrefixExpense)
}

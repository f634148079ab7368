package ledger

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/types"
)

func entry(ref, amount string) Entry {
	return Entry{ReferenceID: ref, Amount: types.MustMoney(amount), Date: time.Now()}
}

func TestReduce(t *testing.T) {
	totals := Reduce(
		[]Entry{entry("IN1", "100"), entry("IN2", "50.5")},
		[]Entry{entry("OUT1", "20.25")},
	)
	assert.True(t, totals.In.Equal(types.MustMoney("150.5")))
	assert.True(t, totals.Out.Equal(types.MustMoney("20.25")))
	assert.True(t, totals.Net.Equal(types.MustMoney("130.25")))

	empty := Reduce(nil, nil)
	assert.True(t, empty.Net.IsZero())
}

func TestRemoveAndUpsert(t *testing.T) {
	entries := []Entry{entry("A", "1"), entry("B", "2")}

	out, ok := Remove(entries, "A")
	require.True(t, ok)
	assert.Len(t, out, 1)
	assert.Len(t, entries, 2, "input must not be modified")

	_, ok = Remove(entries, "missing")
	assert.False(t, ok)

	up := Upsert(entries, entry("B", "7"))
	require.Len(t, up, 2)
	assert.True(t, up[1].Amount.Equal(types.MustMoney("7")))

	up = Upsert(up, entry("C", "3"))
	assert.Len(t, up, 3)
}

func TestEntry_Validate(t *testing.T) {
	assert.NoError(t, entry("IN1", "0.01").Validate())

	err := entry("IN1", "0").Validate()
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	err = entry("", "5").Validate()
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestRefGenerator_MonotonicWithinMillisecond(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	g := &RefGenerator{now: func() time.Time { return fixed }}

	first := g.Next(PrefixIn)
	second := g.Next(PrefixIn)
	assert.Equal(t, "IN1700000000000", first)
	assert.Equal(t, "IN1700000000001", second)

	out, in := g.Pair()
	assert.Equal(t, "OUT1700000000002", out)
	assert.Equal(t, "IN1700000000002", in)
}

func TestRefGenerator_InstanceSuffix(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	a := &RefGenerator{now: func() time.Time { return fixed }, instance: "a"}
	b := &RefGenerator{now: func() time.Time { return fixed }, instance: "b"}

	assert.Equal(t, "PAY1700000000000-a", a.Next(PrefixPayment))
	assert.Equal(t, "PAY1700000000000-b", b.Next(PrefixPayment))

	out, in := a.Pair()
	assert.Equal(t, "OUT1700000000001-a", out)
	assert.Equal(t, "IN1700000000001-a", in)

	assert.Equal(t, "", NewInstanceRefGenerator("").instance)
}

func TestRefGenerator_ConcurrentUnique(t *testing.T) {
	g := NewRefGenerator()
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
		wg   sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				ref := g.Next(PrefixPayment)
				mu.Lock()
				seen[ref] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 1600)
}

func TestExpenseRef(t *testing.T) {
	ref := ExpenseRef("abc")
	assert.Equal(t, "EXP-abc", ref)
	assert.True(t, IsExpenseRef(ref))
	assert.False(t, IsExpenseRef("OUT1"))
	assert.True(t, strings.HasPrefix(ref, PrefixExpense))
}

package ledger

import (
	"slices"

	"tradeledger/internal/core/types"
)

// Totals is the result of reducing a credit side and a debit side.
type Totals struct {
	In  types.Money
	Out types.Money
	Net types.Money
}

// Sum adds the amounts of all entries.
func Sum(entries []Entry) types.Money {
	total := types.Zero()
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}

// Reduce recomputes totals from scratch. It is the only place balances are derived;
// stored scalars are always overwritten with its result.
func Reduce(in, out []Entry) Totals {
	sumIn, sumOut := Sum(in), Sum(out)
	return Totals{In: sumIn, Out: sumOut, Net: sumIn.Sub(sumOut)}
}

// IndexOf returns the position of the entry with ref, or -1.
func IndexOf(entries []Entry, ref string) int {
	return slices.IndexFunc(entries, func(e Entry) bool { return e.ReferenceID == ref })
}

// Find returns the entry with ref.
func Find(entries []Entry, ref string) (Entry, bool) {
	if i := IndexOf(entries, ref); i >= 0 {
		return entries[i], true
	}
	return Entry{}, false
}

// Remove drops every entry with ref and reports whether anything was removed.
func Remove(entries []Entry, ref string) ([]Entry, bool) {
	n := len(entries)
	out := slices.DeleteFunc(slices.Clone(entries), func(e Entry) bool { return e.ReferenceID == ref })
	return out, len(out) != n
}

// Upsert replaces the entry with the same reference id or appends it.
// Repeated edits of a keyed movement (EXP-{id}) therefore never duplicate.
func Upsert(entries []Entry, e Entry) []Entry {
	out := slices.Clone(entries)
	if i := IndexOf(out, e.ReferenceID); i >= 0 {
		out[i] = e
		return out
	}
	return append(out, e)
}

// SortByDate orders entries by date ascending, keeping insertion order for ties.
func SortByDate(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return a.Date.Compare(b.Date)
	})
}

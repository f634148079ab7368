// Package numerator provides domain contracts for sequential document ids.
// Implementations live in pkg/numerator.
package numerator

import "context"

// Id prefixes.
const (
	PrefixPurchase = "KP"
	PrefixReturn   = "CN"
)

// Generator allocates the next id for a prefix.
type Generator interface {
	// Next returns prefix + (max existing numeric suffix + 1), e.g. KP42.
	Next(ctx context.Context, prefix string) (string, error)
}

// MaxFinder reports the largest numeric suffix already used with prefix (0 if none).
// Storage backends implement it; the postgres variant runs inside the caller's transaction.
type MaxFinder interface {
	MaxSuffix(ctx context.Context, prefix string) (int64, error)
}

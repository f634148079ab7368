// Package numerator allocates sequential prefixed ids (KP{n}, CN{n}) as max + 1.
package numerator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	corenum "tradeledger/internal/core/numerator"
)

// Service implements corenum.Generator on top of a MaxFinder.
//
// Allocation is max + 1 over ids already stored, so it must run inside the
// transaction that inserts the new document; a concurrent insert of the same
// id fails on the unique key and the caller retries.
type Service struct {
	finder corenum.MaxFinder
}

// New creates a numerator service.
func New(finder corenum.MaxFinder) *Service {
	return &Service{finder: finder}
}

// Next implements corenum.Generator.
func (s *Service) Next(ctx context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("numerator: empty prefix")
	}
	max, err := s.finder.MaxSuffix(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("numerator: max suffix for %s: %w", prefix, err)
	}
	return Format(prefix, max+1), nil
}

// Format builds prefix + n without padding (KP7, CN120).
func Format(prefix string, n int64) string {
	return prefix + strconv.FormatInt(n, 10)
}

// Parse extracts the numeric suffix of an id with the given prefix.
// Returns false for ids that do not follow the prefix + digits pattern.
func Parse(prefix, id string) (int64, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	digits := id[len(prefix):]
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MaxOf returns the largest suffix among ids carrying prefix. Non-matching ids are ignored.
func MaxOf(prefix string, ids []string) int64 {
	var max int64
	for _, id := range ids {
		if n, ok := Parse(prefix, id); ok && n > max {
			max = n
		}
	}
	return max
}

// NextAfter returns the id following the existing ones.
func NextAfter(prefix string, existing []string) string {
	return Format(prefix, MaxOf(prefix, existing)+1)
}

var _ corenum.Generator = (*Service)(nil)

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CopyInto streams n rows into table with the COPY protocol. row(i) returns
// the values of row i in columns order. It must run inside a transaction so
// the rows commit together with the aggregates they belong to.
func (m *TxManager) CopyInto(ctx context.Context, table string, columns []string, n int, row func(i int) ([]any, error)) (int64, error) {
	t := m.GetTx(ctx)
	if t == nil {
		return 0, fmt.Errorf("copy into %s: no transaction in context", table)
	}
	if n == 0 {
		return 0, nil
	}
	return t.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromSlice(n, row))
}

// Statement is one queued SQL statement.
type Statement struct {
	SQL  string
	Args []any
}

// SendBatch runs statements in one round trip inside the current
// transaction. The first failing statement aborts the batch.
func (m *TxManager) SendBatch(ctx context.Context, stmts []Statement) error {
	t := m.GetTx(ctx)
	if t == nil {
		return fmt.Errorf("send batch: no transaction in context")
	}
	if len(stmts) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, s := range stmts {
		b.Queue(s.SQL, s.Args...)
	}
	results := t.SendBatch(ctx, b)
	defer results.Close()

	for i := range stmts {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("statement %d of %d: %w", i+1, len(stmts), err)
		}
	}
	return nil
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	appctx "tradeledger/internal/core/context"
	"tradeledger/internal/core/id"
	"tradeledger/internal/domain/audit"
)

// CompressionAlgo specifies the compression algorithm used for snapshots.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is a row of sys_audit.
type AuditEntry struct {
	ID                 id.ID           `db:"id"`
	EntityType         string          `db:"entity_type"`
	EntityKey          string          `db:"entity_key"`
	Action             audit.Action    `db:"action"`
	Operation          string          `db:"operation"`
	UserID             string          `db:"user_id"`
	Snapshot           json.RawMessage `db:"snapshot"`
	SnapshotCompressed []byte          `db:"snapshot_compressed"`
	CompressionAlgo    CompressionAlgo `db:"compression_algo"`
	CreatedAt          time.Time       `db:"created_at"`
}

var auditColumns = []string{
	"id", "entity_type", "entity_key", "action", "operation", "user_id",
	"snapshot", "snapshot_compressed", "compression_algo", "created_at",
}

// AuditService implements audit.Logger on sys_audit. Snapshots above the
// threshold are stored zstd-compressed.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewAuditService creates a new audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// entry builds the row for one record, compressing large snapshots.
func (s *AuditService) entry(ctx context.Context, rec audit.Record, now time.Time) (AuditEntry, error) {
	e := AuditEntry{
		ID:              id.New(),
		EntityType:      rec.EntityType,
		EntityKey:       rec.EntityKey,
		Action:          rec.Action,
		Operation:       rec.Operation,
		UserID:          appctx.GetUserID(ctx),
		CompressionAlgo: CompressionNone,
		CreatedAt:       now,
	}
	if rec.Snapshot == nil {
		return e, nil
	}

	raw, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return e, fmt.Errorf("marshal audit snapshot: %w", err)
	}
	if len(raw) > s.compressThreshold {
		e.SnapshotCompressed = s.encoder.EncodeAll(raw, nil)
		e.CompressionAlgo = CompressionZstd
		return e, nil
	}
	e.Snapshot = raw
	return e, nil
}

// LogBatch implements audit.Logger.
func (s *AuditService) LogBatch(ctx context.Context, records []audit.Record) error {
	now := time.Now().UTC()
	entries := make([]AuditEntry, 0, len(records))
	for _, rec := range records {
		e, err := s.entry(ctx, rec, now)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}

	_, err := s.txManager.CopyInto(ctx, "sys_audit", auditColumns, len(entries), func(i int) ([]any, error) {
		e := entries[i]
		var snapshot any
		if e.Snapshot != nil {
			snapshot = string(e.Snapshot)
		}
		return []any{
			e.ID, e.EntityType, e.EntityKey, string(e.Action), e.Operation, e.UserID,
			snapshot, e.SnapshotCompressed, string(e.CompressionAlgo), e.CreatedAt,
		}, nil
	})
	if err != nil {
		return fmt.Errorf("insert audit records: %w", err)
	}
	return nil
}

// History returns the audit trail of one aggregate, newest first.
func (s *AuditService) History(ctx context.Context, entityType, entityKey string, limit int) ([]AuditEntry, error) {
	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, `
		SELECT id, entity_type, entity_key, action, operation, user_id,
		       snapshot, snapshot_compressed, compression_algo, created_at
		FROM sys_audit
		WHERE entity_type = $1 AND entity_key = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, entityType, entityKey, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(
			&e.ID, &e.EntityType, &e.EntityKey, &e.Action, &e.Operation, &e.UserID,
			&e.Snapshot, &e.SnapshotCompressed, &e.CompressionAlgo, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := s.decompress(&e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *AuditService) decompress(e *AuditEntry) error {
	if e.CompressionAlgo != CompressionZstd || len(e.SnapshotCompressed) == 0 {
		return nil
	}
	raw, err := s.decoder.DecodeAll(e.SnapshotCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress snapshot: %w", err)
	}
	e.Snapshot = raw
	e.SnapshotCompressed = nil
	return nil
}

var _ audit.Logger = (*AuditService)(nil)

package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/core/id"
	"tradeledger/internal/domain"
	"tradeledger/internal/domain/accounts"
	"tradeledger/internal/domain/billing"
	"tradeledger/internal/domain/calendar"
	"tradeledger/internal/domain/daybook"
	"tradeledger/internal/domain/purchase"
	"tradeledger/internal/domain/reconcile"
	"tradeledger/internal/domain/returns"
	"tradeledger/internal/domain/stock"
)

// Table names.
const (
	TablePaymentsAccounts  = "payments_accounts"
	TableSupplierAccounts  = "supplier_accounts"
	TableSellerPayments    = "seller_payments"
	TableCustomerAccounts  = "customer_accounts"
	TableBillings          = "billings"
	TableNeeds             = "need_to_purchase"
	TableProducts          = "products"
	TablePurchases         = "purchases"
	TableReturns           = "returns"
	TableDailyTransactions = "daily_transactions"
	TableCalendarEvents    = "calendar_events"
	TableStockRegistry     = "stock_registry"
)

// immutable columns are never part of an UPDATE.
var immutable = []string{"id", "version", "created_at", "created_by"}

// LedgerRepo implements domain.Repository for one aggregate table.
// Inside a transaction every read locks the row (FOR UPDATE).
type LedgerRepo[E any, T interface {
	*E
	domain.Aggregate
}] struct {
	txm       *TxManager
	table     string
	keyColumn string
	columns   []string
}

// NewLedgerRepo creates a repository whose natural key lives in keyColumn.
// Tables keyed by the aggregate id pass "id".
func NewLedgerRepo[E any, T interface {
	*E
	domain.Aggregate
}](txm *TxManager, table, keyColumn string) *LedgerRepo[E, T] {
	return &LedgerRepo[E, T]{
		txm:       txm,
		table:     table,
		keyColumn: keyColumn,
		columns:   ExtractDBColumns[E](),
	}
}

func (r *LedgerRepo[E, T]) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// keyArg converts key to the column type. ok is false when key can never match.
func (r *LedgerRepo[E, T]) keyArg(key string) (any, bool) {
	if r.keyColumn != "id" {
		return key, true
	}
	parsed, err := id.Parse(key)
	if err != nil {
		return nil, false
	}
	return parsed, true
}

func (r *LedgerRepo[E, T]) selectQuery(ctx context.Context) squirrel.SelectBuilder {
	q := r.builder().Select(r.columns...).From(r.table)
	if t := r.txm.GetTx(ctx); t != nil && !t.ReadOnly() {
		q = q.Suffix("FOR UPDATE")
	}
	return q
}

// Get implements domain.Repository.
func (r *LedgerRepo[E, T]) Get(ctx context.Context, key string) (T, error) {
	arg, ok := r.keyArg(key)
	if !ok {
		return nil, apperror.NewNotFound(r.table, key)
	}

	sql, args, err := r.selectQuery(ctx).Where(squirrel.Eq{r.keyColumn: arg}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	agg := T(new(E))
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), agg, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(r.table, key)
		}
		return nil, fmt.Errorf("get %s %s: %w", r.table, key, err)
	}
	return agg, nil
}

// Exists implements domain.Repository.
func (r *LedgerRepo[E, T]) Exists(ctx context.Context, key string) (bool, error) {
	arg, ok := r.keyArg(key)
	if !ok {
		return false, nil
	}

	sql, args, err := r.builder().
		Select("1").From(r.table).
		Where(squirrel.Eq{r.keyColumn: arg}).
		Prefix("SELECT EXISTS (").Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var exists bool
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists %s: %w", r.table, err)
	}
	return exists, nil
}

// List implements domain.Repository.
func (r *LedgerRepo[E, T]) List(ctx context.Context) ([]T, error) {
	return r.list(ctx, nil)
}

func (r *LedgerRepo[E, T]) list(ctx context.Context, where squirrel.Sqlizer) ([]T, error) {
	q := r.builder().Select(r.columns...).From(r.table).OrderBy(r.keyColumn)
	if where != nil {
		q = q.Where(where)
	}
	if t := r.txm.GetTx(ctx); t != nil && !t.ReadOnly() {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []T
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table, err)
	}
	return rows, nil
}

// Save implements domain.Repository: INSERT for new aggregates, otherwise an
// UPDATE guarded by the loaded version.
func (r *LedgerRepo[E, T]) Save(ctx context.Context, agg T) error {
	if agg.IsNew() {
		return r.insert(ctx, agg)
	}
	return r.update(ctx, agg)
}

func (r *LedgerRepo[E, T]) insert(ctx context.Context, agg T) error {
	agg.SetVersion(1)
	data := StructToMap(agg)

	sql, args, err := r.builder().Insert(r.table).SetMap(data).ToSql()
	if err != nil {
		agg.SetVersion(0)
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		agg.SetVersion(0)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperror.NewDuplicate(r.table, r.keyColumn, agg.Key())
		}
		return fmt.Errorf("insert %s: %w", r.table, err)
	}
	return nil
}

func (r *LedgerRepo[E, T]) update(ctx context.Context, agg T) error {
	data := StructToMap(agg)
	version := agg.GetVersion()
	for _, col := range immutable {
		delete(data, col)
	}
	delete(data, r.keyColumn)

	arg, _ := r.keyArg(agg.Key())
	sql, args, err := r.builder().
		Update(r.table).
		SetMap(data).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{r.keyColumn: arg}).
		Where(squirrel.Eq{"version": version}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", r.table, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification(r.table, agg.Key())
	}

	agg.SetVersion(version + 1)
	return nil
}

// Delete implements domain.Repository.
func (r *LedgerRepo[E, T]) Delete(ctx context.Context, key string) error {
	arg, ok := r.keyArg(key)
	if !ok {
		return apperror.NewNotFound(r.table, key)
	}

	sql, args, err := r.builder().Delete(r.table).Where(squirrel.Eq{r.keyColumn: arg}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	result, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", r.table, err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewNotFound(r.table, key)
	}
	return nil
}

// --- Typed repositories ---

// BillingRepo implements billing.Repository.
type BillingRepo struct {
	*LedgerRepo[billing.Billing, *billing.Billing]
}

// ListByCustomer implements billing.Repository.
func (r *BillingRepo) ListByCustomer(ctx context.Context, customerID string) ([]*billing.Billing, error) {
	return r.list(ctx, squirrel.Eq{"customer_id": customerID})
}

// ExistsInvoice implements billing.Repository.
func (r *BillingRepo) ExistsInvoice(ctx context.Context, invoiceNo string) (bool, error) {
	var exists bool
	err := r.txm.GetQuerier(ctx).
		QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM billings WHERE invoice_no = $1)", invoiceNo).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists invoice: %w", err)
	}
	return exists, nil
}

// NeedRepo implements billing.NeedRepository.
type NeedRepo struct {
	*LedgerRepo[billing.NeedToPurchase, *billing.NeedToPurchase]
}

// ListByInvoice implements billing.NeedRepository.
func (r *NeedRepo) ListByInvoice(ctx context.Context, invoiceNo string) ([]*billing.NeedToPurchase, error) {
	return r.list(ctx, squirrel.Eq{"invoice_no": invoiceNo})
}

// NumberedRepo adds MaxSuffix over the key column (KP{n}, CN{n}).
type NumberedRepo[E any, T interface {
	*E
	domain.Aggregate
}] struct {
	*LedgerRepo[E, T]
}

// MaxSuffix implements numerator.MaxFinder. Keys that do not match
// prefix + digits are ignored.
func (r *NumberedRepo[E, T]) MaxSuffix(ctx context.Context, prefix string) (int64, error) {
	sql := fmt.Sprintf(
		`SELECT COALESCE(MAX(CAST(substring(%[1]s FROM '^' || $1 || '([0-9]{1,18})$') AS BIGINT)), 0) FROM %[2]s`,
		r.keyColumn, r.table)

	var max int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, regexp.QuoteMeta(prefix)).Scan(&max); err != nil {
		return 0, fmt.Errorf("max suffix %s: %w", r.table, err)
	}
	return max, nil
}

// Registry implements stock.Registry on the append-only stock_registry table.
// Rows are ordered by a bigserial column, so insertion order survives equal timestamps.
type Registry struct {
	txm     *TxManager
	columns []string
}

// NewRegistry creates the registry repository.
func NewRegistry(txm *TxManager) *Registry {
	return &Registry{
		txm:     txm,
		columns: ExtractDBColumns[stock.Change](),
	}
}

// Append implements stock.Registry.
func (r *Registry) Append(ctx context.Context, rows ...stock.Change) error {
	_, err := r.txm.CopyInto(ctx, TableStockRegistry, r.columns, len(rows), func(i int) ([]any, error) {
		m := StructToMap(rows[i])
		vals := make([]any, len(r.columns))
		for j, col := range r.columns {
			vals[j] = m[col]
		}
		return vals, nil
	})
	if err != nil {
		return fmt.Errorf("append stock registry: %w", err)
	}
	return nil
}

// Get implements stock.Registry.
func (r *Registry) Get(ctx context.Context, changeID id.ID) (stock.Change, error) {
	sql, args, err := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select(r.columns...).From(TableStockRegistry).
		Where(squirrel.Eq{"id": changeID}).
		ToSql()
	if err != nil {
		return stock.Change{}, fmt.Errorf("build query: %w", err)
	}

	var row stock.Change
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return stock.Change{}, apperror.NewNotFound("StockChange", changeID.String())
		}
		return stock.Change{}, fmt.Errorf("get stock change: %w", err)
	}
	return row, nil
}

// ListByItem implements stock.Registry.
func (r *Registry) ListByItem(ctx context.Context, itemID string) ([]stock.Change, error) {
	sql, args, err := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select(r.columns...).From(TableStockRegistry).
		Where(squirrel.Eq{"item_id": itemID}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []stock.Change
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list stock registry: %w", err)
	}
	return rows, nil
}

// Stores wires every repository to txm.
func Stores(txm *TxManager) reconcile.Stores {
	return reconcile.Stores{
		PaymentsAccounts: NewLedgerRepo[accounts.PaymentsAccount](txm, TablePaymentsAccounts, "name"),
		Suppliers:        NewLedgerRepo[accounts.SupplierAccount](txm, TableSupplierAccounts, "supplier_id"),
		Sellers:          NewLedgerRepo[accounts.SellerPayment](txm, TableSellerPayments, "seller_id"),
		Customers:        NewLedgerRepo[accounts.CustomerAccount](txm, TableCustomerAccounts, "customer_id"),
		Billings:         &BillingRepo{NewLedgerRepo[billing.Billing](txm, TableBillings, "id")},
		Needs:            &NeedRepo{NewLedgerRepo[billing.NeedToPurchase](txm, TableNeeds, "need_key")},
		Products:         NewLedgerRepo[stock.Product](txm, TableProducts, "item_id"),
		Registry:         NewRegistry(txm),
		Purchases:        &NumberedRepo[purchase.Purchase, *purchase.Purchase]{NewLedgerRepo[purchase.Purchase](txm, TablePurchases, "purchase_id")},
		Returns:          &NumberedRepo[returns.Return, *returns.Return]{NewLedgerRepo[returns.Return](txm, TableReturns, "return_no")},
		Transactions:     NewLedgerRepo[daybook.DailyTransaction](txm, TableDailyTransactions, "id"),
		Events:           NewLedgerRepo[calendar.Event](txm, TableCalendarEvents, "source_key"),
	}
}

var (
	_ billing.Repository     = (*BillingRepo)(nil)
	_ billing.NeedRepository = (*NeedRepo)(nil)
	_ purchase.Repository    = (*NumberedRepo[purchase.Purchase, *purchase.Purchase])(nil)
	_ stock.Registry         = (*Registry)(nil)
)

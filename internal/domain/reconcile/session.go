package reconcile

import (
	"context"
	"maps"
	"slices"
	"time"

	"tradeledger/internal/core/apperror"
	appctx "tradeledger/internal/core/context"
	"tradeledger/internal/core/types"
	"tradeledger/internal/domain"
	"tradeledger/internal/domain/accounts"
	"tradeledger/internal/domain/audit"
	"tradeledger/internal/domain/billing"
	"tradeledger/internal/domain/events"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/domain/stock"
)

// session is the unit of work of one operation attempt. Every aggregate is read
// once (locking read inside the transaction) and cached, so repeated access
// within the operation sees the same in-memory value. flush recomputes and
// saves everything that was loaded.
type session struct {
	ctx context.Context
	svc *Service
	op  string
	by  string
	now time.Time

	payments  map[string]*accounts.PaymentsAccount
	suppliers map[string]*accounts.SupplierAccount
	sellers   map[string]*accounts.SellerPayment
	customers map[string]*accounts.CustomerAccount
	products  map[string]*stock.Product
	billings  map[string]*billing.Billing

	registry []stock.Change
	events   []events.Event
	audits   []audit.Record
}

func (s *Service) newSession(ctx context.Context, op string) *session {
	return &session{
		ctx:       ctx,
		svc:       s,
		op:        op,
		by:        appctx.SubmittedBy(ctx),
		now:       s.now().UTC(),
		payments:  make(map[string]*accounts.PaymentsAccount),
		suppliers: make(map[string]*accounts.SupplierAccount),
		sellers:   make(map[string]*accounts.SellerPayment),
		customers: make(map[string]*accounts.CustomerAccount),
		products:  make(map[string]*stock.Product),
		billings:  make(map[string]*billing.Billing),
	}
}

func load[T domain.Aggregate](ctx context.Context, cache map[string]T, repo domain.Repository[T], key string) (T, error) {
	if v, ok := cache[key]; ok {
		return v, nil
	}
	v, err := repo.Get(ctx, key)
	if err != nil {
		var zero T
		return zero, err
	}
	cache[key] = v
	return v, nil
}

// paymentsAccount loads the account addressed by a payment method.
func (ss *session) paymentsAccount(name string) (*accounts.PaymentsAccount, error) {
	if name == "" {
		return nil, apperror.NewValidation("payment method is required").WithDetail("field", "method")
	}
	return load(ss.ctx, ss.payments, ss.svc.stores.PaymentsAccounts, name)
}

func (ss *session) supplier(supplierID, name string, create bool) (*accounts.SupplierAccount, error) {
	acc, err := load(ss.ctx, ss.suppliers, ss.svc.stores.Suppliers, supplierID)
	if create && apperror.IsNotFound(err) {
		acc = accounts.NewSupplierAccount(supplierID, name, ss.by)
		ss.suppliers[supplierID] = acc
		return acc, nil
	}
	return acc, err
}

func (ss *session) seller(sellerID, name string, create bool) (*accounts.SellerPayment, error) {
	sp, err := load(ss.ctx, ss.sellers, ss.svc.stores.Sellers, sellerID)
	if create && apperror.IsNotFound(err) {
		sp = accounts.NewSellerPayment(sellerID, name, ss.by)
		ss.sellers[sellerID] = sp
		return sp, nil
	}
	return sp, err
}

func (ss *session) customer(customerID, name string, create bool) (*accounts.CustomerAccount, error) {
	ca, err := load(ss.ctx, ss.customers, ss.svc.stores.Customers, customerID)
	if create && apperror.IsNotFound(err) {
		ca = accounts.NewCustomerAccount(customerID, name, ss.by)
		ss.customers[customerID] = ca
		return ca, nil
	}
	return ca, err
}

func (ss *session) product(itemID string) (*stock.Product, error) {
	return load(ss.ctx, ss.products, ss.svc.stores.Products, itemID)
}

func (ss *session) billing(key string) (*billing.Billing, error) {
	return load[*billing.Billing](ss.ctx, ss.billings, ss.svc.stores.Billings, key)
}

// track registers an aggregate created during the operation.
func (ss *session) trackBilling(b *billing.Billing) { ss.billings[b.Key()] = b }
func (ss *session) trackProduct(p *stock.Product)   { ss.products[p.Key()] = p }

// applyStock changes a product count and queues the registry row.
func (ss *session) applyStock(p *stock.Product, delta types.Quantity, ct stock.ChangeType, invoiceNo string) (stock.Change, error) {
	row, err := stock.Apply(p, delta, ct, invoiceNo, ss.by, ss.now)
	if err != nil {
		return stock.Change{}, err
	}
	ss.registry = append(ss.registry, row)
	return row, nil
}

// removeExpenseEntries drops the OUT entries of expenses. Entries already gone are skipped.
func (ss *session) removeExpenseEntries(expenses []billing.Expense) error {
	for _, e := range expenses {
		acc, err := ss.paymentsAccount(e.Method)
		if err != nil {
			return err
		}
		acc.RemoveDebit(ledger.ExpenseRef(e.ID))
	}
	return nil
}

// applyExpenseDiff mirrors an expense merge into the payments accounts.
func (ss *session) applyExpenseDiff(diff billing.ExpenseDiff, invoiceNo string) error {
	if err := ss.removeExpenseEntries(diff.Removed); err != nil {
		return err
	}
	for _, e := range diff.Upserted {
		acc, err := ss.paymentsAccount(e.Method)
		if err != nil {
			return err
		}
		entry := e.LedgerEntry(ss.by)
		entry.InvoiceNo = invoiceNo
		if err := acc.UpsertDebit(entry); err != nil {
			return err
		}
	}
	return nil
}

// emit queues an outbox event.
func (ss *session) emit(aggregateType, key, eventType string, payload any) {
	ss.events = append(ss.events, events.Event{
		AggregateType: aggregateType,
		AggregateKey:  key,
		EventType:     eventType,
		Payload:       payload,
	})
}

// recordSaved queues an audit record for an aggregate the operation saved itself.
func (ss *session) recordSaved(entityType, key string, action audit.Action, snapshot any) {
	ss.audits = append(ss.audits, audit.Record{
		EntityType: entityType,
		EntityKey:  key,
		Action:     action,
		Operation:  ss.op,
		Snapshot:   snapshot,
	})
}

// save persists an aggregate that is not part of the recompute set.
func save[T touchable](ss *session, entityType string, repo domain.Repository[T], agg T) error {
	action := actionFor(agg)
	agg.Touch(ss.by)
	if err := repo.Save(ss.ctx, agg); err != nil {
		return err
	}
	ss.recordSaved(entityType, agg.Key(), action, agg)
	return nil
}

// remove deletes an aggregate by key and records it.
func remove[T domain.Aggregate](ss *session, entityType string, repo domain.Repository[T], key string) error {
	if err := repo.Delete(ss.ctx, key); err != nil {
		return err
	}
	ss.recordSaved(entityType, key, audit.ActionDelete, nil)
	return nil
}

type touchable interface {
	domain.Aggregate
	Touch(by string)
}

func actionFor(agg domain.Aggregate) audit.Action {
	if agg.IsNew() {
		return audit.ActionCreate
	}
	return audit.ActionUpdate
}

// flushAll prepares and saves every cached aggregate in key order.
func flushAll[T touchable](ss *session, entityType string, cache map[string]T, repo domain.Repository[T],
	prepare func(T) error, after func(T) error) error {
	for _, key := range slices.Sorted(maps.Keys(cache)) {
		agg := cache[key]
		if prepare != nil {
			if err := prepare(agg); err != nil {
				return err
			}
		}
		if err := save(ss, entityType, repo, agg); err != nil {
			return err
		}
		if after != nil {
			if err := after(agg); err != nil {
				return err
			}
		}
	}
	return nil
}

// flush recomputes every touched aggregate and writes it with the registry,
// audit and outbox rows. Any recompute failure aborts the transaction.
func (ss *session) flush() error {
	st := ss.svc.stores
	hooks := ss.svc.billingHooks

	if err := flushAll(ss, stock.EntityProduct, ss.products, st.Products,
		func(p *stock.Product) error { return p.Validate() }, nil); err != nil {
		return err
	}
	if err := flushAll(ss, accounts.EntityPaymentsAccount, ss.payments, st.PaymentsAccounts,
		func(a *accounts.PaymentsAccount) error { return a.Recompute() }, nil); err != nil {
		return err
	}
	if err := flushAll(ss, accounts.EntitySupplierAccount, ss.suppliers, st.Suppliers,
		func(a *accounts.SupplierAccount) error { return a.Recompute() }, nil); err != nil {
		return err
	}
	if err := flushAll(ss, accounts.EntitySellerPayment, ss.sellers, st.Sellers,
		func(a *accounts.SellerPayment) error { return a.Recompute() }, nil); err != nil {
		return err
	}
	if err := flushAll(ss, accounts.EntityCustomerAccount, ss.customers, st.Customers,
		func(a *accounts.CustomerAccount) error { return a.Recompute() }, nil); err != nil {
		return err
	}
	if err := flushAll[*billing.Billing](ss, billing.EntityBilling, ss.billings, st.Billings,
		func(b *billing.Billing) error { return hooks.Run(ss.ctx, domain.BeforeSave, b) },
		func(b *billing.Billing) error { return hooks.Run(ss.ctx, domain.AfterSave, b) }); err != nil {
		return err
	}

	if len(ss.registry) > 0 {
		if err := st.Registry.Append(ss.ctx, ss.registry...); err != nil {
			return err
		}
	}
	if len(ss.audits) > 0 {
		for i := range ss.audits {
			ss.audits[i].Operation = ss.op
		}
		if err := ss.svc.auditor.LogBatch(ss.ctx, ss.audits); err != nil {
			return err
		}
	}
	if len(ss.events) > 0 {
		if err := ss.svc.publisher.PublishBatch(ss.ctx, ss.events); err != nil {
			return err
		}
	}
	return nil
}

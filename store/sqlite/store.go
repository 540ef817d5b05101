package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate" // registers the sqlite migration executor
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tiersale"
	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/participant"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
	salestore "github.com/xraph/tiersale/store"
)

// compile-time interface check
var _ salestore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("tiersale/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %w", tiersale.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Sale Store ====================

func (s *Store) CreateSale(ctx context.Context, sl *sale.Sale) error {
	m, err := toSaleModel(sl)
	if err != nil {
		return err
	}
	_, err = s.sdb.NewInsert(m).Exec(ctx)
	if isUniqueViolation(err) {
		return tiersale.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetSale(ctx context.Context, saleID id.SaleID) (*sale.Sale, error) {
	m := new(saleModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", saleID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tiersale.ErrSaleNotFound
		}
		return nil, err
	}
	return fromSaleModel(m)
}

func (s *Store) ListSales(ctx context.Context, opts sale.ListOpts) ([]*sale.Sale, error) {
	var models []saleModel
	q := s.sdb.NewSelect(&models)

	if opts.Owner != "" {
		q = q.Where("owner = ?", opts.Owner)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*sale.Sale, len(models))
	for i := range models {
		sl, err := fromSaleModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sl
	}
	return result, nil
}

// ==================== Participant Store ====================

func (s *Store) GetParticipant(ctx context.Context, saleID id.SaleID, address string) (*participant.Ledger, error) {
	m := new(participantModel)
	err := s.sdb.NewSelect(m).
		Where("sale_id = ?", saleID.String()).
		Where("address = ?", address).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tiersale.ErrParticipantNotFound
		}
		return nil, err
	}
	return fromParticipantModel(m)
}

func (s *Store) ListParticipants(ctx context.Context, saleID id.SaleID, opts participant.ListOpts) ([]*participant.Ledger, error) {
	var models []participantModel
	q := s.sdb.NewSelect(&models).Where("sale_id = ?", saleID.String())

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*participant.Ledger, len(models))
	for i := range models {
		l, err := fromParticipantModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = l
	}
	return result, nil
}

// ==================== Purchase Store ====================

func (s *Store) GetPurchase(ctx context.Context, purchaseID id.PurchaseID) (*purchase.Purchase, error) {
	m := new(purchaseModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", purchaseID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tiersale.ErrPurchaseNotFound
		}
		return nil, err
	}
	return fromPurchaseModel(m)
}

func (s *Store) ListPurchases(ctx context.Context, saleID id.SaleID, opts purchase.ListOpts) ([]*purchase.Purchase, error) {
	var models []purchaseModel
	q := s.sdb.NewSelect(&models).Where("sale_id = ?", saleID.String())

	if opts.Participant != "" {
		q = q.Where("participant = ?", opts.Participant)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*purchase.Purchase, len(models))
	for i := range models {
		p, err := fromPurchaseModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) UpdatePurchaseStatus(ctx context.Context, purchaseID id.PurchaseID, status purchase.Status, reason string) error {
	res, err := s.sdb.NewUpdate((*purchaseModel)(nil)).
		Set("status = ?", string(status)).
		Set("reason = ?", reason).
		Set("updated_at = ?", now()).
		Where("id = ?", purchaseID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return tiersale.ErrPurchaseNotFound
	}
	return nil
}

// ==================== Commit ====================

// CommitPurchase claims the sale row with a version check, then writes the
// participant ledger and the receipt. All three statements share one
// transaction; any failure rolls the claim back.
func (s *Store) CommitPurchase(ctx context.Context, sl *sale.Sale, l *participant.Ledger, p *purchase.Purchase) error {
	sm, err := toSaleModel(sl)
	if err != nil {
		return err
	}
	lm, err := toParticipantModel(l)
	if err != nil {
		return err
	}

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("tiersale/sqlite: begin commit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	res, err := tx.NewUpdate((*saleModel)(nil)).
		Set("tiers = ?", sm.Tiers).
		Set("current_tier = ?", sm.CurrentTier).
		Set("total_sold = ?", sm.TotalSold).
		Set("version = ?", sm.Version).
		Set("updated_at = ?", sm.UpdatedAt).
		Where("id = ?", sm.ID).
		Where("version = ?", sm.Version-1).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tiersale/sqlite: claim sale %s: %w", sm.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		_ = tx.Rollback() //nolint:errcheck // release the write lock before reading
		if _, err := s.GetSale(ctx, sl.ID); err != nil {
			return err
		}
		return tiersale.ErrConcurrentUpdate
	}

	_, err = tx.NewInsert(lm).
		OnConflict("(sale_id, address) DO UPDATE").
		Set("contributions = EXCLUDED.contributions").
		Set("tokens_bought = EXCLUDED.tokens_bought").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tiersale/sqlite: write participant %s: %w", lm.Address, err)
	}

	if _, err := tx.NewInsert(toPurchaseModel(p)).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tiersale/sqlite: insert purchase %s: %w", p.ID, tiersale.ErrAlreadyExists)
		}
		return fmt.Errorf("tiersale/sqlite: insert purchase %s: %w", p.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tiersale/sqlite: commit purchase %s: %w", p.ID, err)
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation matches SQLite's constraint message; drivers differ in
// the error types they return.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate" // registers the postgres migration executor
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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tiersale/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", tiersale.ErrMigrationFailed, err)
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
	_, err = s.pg.NewInsert(m).Exec(ctx)
	if isUniqueViolation(err) {
		return tiersale.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetSale(ctx context.Context, saleID id.SaleID) (*sale.Sale, error) {
	m := new(saleModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", saleID.String()).
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
	q := s.pg.NewSelect(&models)

	if opts.Owner != "" {
		q = q.Where("owner = $1", opts.Owner)
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
	err := s.pg.NewSelect(m).
		Where("sale_id = $1", saleID.String()).
		Where("address = $2", address).
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
	q := s.pg.NewSelect(&models).Where("sale_id = $1", saleID.String())

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
	err := s.pg.NewSelect(m).
		Where("id = $1", purchaseID.String()).
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
	q := s.pg.NewSelect(&models).Where("sale_id = $1", saleID.String())

	argIdx := 1
	if opts.Participant != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("participant = $%d", argIdx), opts.Participant)
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
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
	res, err := s.pg.NewUpdate((*purchaseModel)(nil)).
		Set("status = $1", string(status)).
		Set("reason = $2", reason).
		Set("updated_at = $3", now()).
		Where("id = $4", purchaseID.String()).
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

// commitPurchaseSQL applies a purchase in one statement. Every write hangs
// off the version-checked sale update, so a stale version writes nothing.
const commitPurchaseSQL = `
WITH sale_row AS (
    UPDATE tiersale_sales
       SET tiers = $2::jsonb, current_tier = $3, total_sold = $4, version = $5, updated_at = $6
     WHERE id = $1 AND version = $7
 RETURNING id
), ledger_row AS (
    INSERT INTO tiersale_participants (id, sale_id, address, contributions, tokens_bought, created_at, updated_at)
    SELECT $8, sale_row.id, $9, $10::jsonb, $11, $12, $13 FROM sale_row
    ON CONFLICT (sale_id, address) DO UPDATE
       SET contributions = EXCLUDED.contributions,
           tokens_bought = EXCLUDED.tokens_bought,
           updated_at    = EXCLUDED.updated_at
 RETURNING id
), purchase_row AS (
    INSERT INTO tiersale_purchases (id, sale_id, participant, ledger_id, tier_index, payment, allocation, price,
                                    advanced, status, reason, payment_transfer_id, allocation_transfer_id,
                                    created_at, updated_at)
    SELECT $14, sale_row.id, $9, $8, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $24 FROM sale_row
 RETURNING id
)
SELECT COUNT(*) FROM sale_row`

func (s *Store) CommitPurchase(ctx context.Context, sl *sale.Sale, l *participant.Ledger, p *purchase.Purchase) error {
	sm, err := toSaleModel(sl)
	if err != nil {
		return err
	}
	lm, err := toParticipantModel(l)
	if err != nil {
		return err
	}
	pm := toPurchaseModel(p)

	var applied int64
	err = s.pg.NewRaw(commitPurchaseSQL,
		sm.ID, string(sm.Tiers), sm.CurrentTier, sm.TotalSold, sm.Version, sm.UpdatedAt, sm.Version-1,
		lm.ID, lm.Address, string(lm.Contributions), lm.TokensBought, lm.CreatedAt, lm.UpdatedAt,
		pm.ID, pm.TierIndex, pm.Payment, pm.Allocation, pm.Price,
		pm.Advanced, pm.Status, pm.Reason, pm.PaymentTransferID, pm.AllocationTransferID, pm.CreatedAt,
	).Scan(ctx, &applied)
	if err != nil {
		if isUniqueViolation(err) {
			return tiersale.ErrAlreadyExists
		}
		return fmt.Errorf("tiersale/postgres: commit purchase: %w", err)
	}
	if applied == 1 {
		return nil
	}

	// Nothing matched: either the sale is gone or another writer got there
	// first.
	if _, err := s.GetSale(ctx, sl.ID); err != nil {
		return err
	}
	return tiersale.ErrConcurrentUpdate
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

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// isUniqueViolation reports a duplicate key error from the server.
func isUniqueViolation(err error) bool {
	var coded interface{ SQLState() string }
	return err != nil && errors.As(err, &coded) && coded.SQLState() == uniqueViolation
}

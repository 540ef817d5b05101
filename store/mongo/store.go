package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tiersale"
	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/participant"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
	salestore "github.com/xraph/tiersale/store"
)

// Collection name constants.
const (
	colSales        = "tiersale_sales"
	colParticipants = "tiersale_participants"
	colPurchases    = "tiersale_purchases"
)

// compile-time interface check
var _ salestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tiersale collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: mongo: %s indexes: %w", tiersale.ErrMigrationFailed, col, err)
		}
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
	_, err := s.mdb.NewInsert(toSaleModel(sl)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tiersale.ErrAlreadyExists
		}
		return fmt.Errorf("tiersale/mongo: create sale: %w", err)
	}
	return nil
}

func (s *Store) GetSale(ctx context.Context, saleID id.SaleID) (*sale.Sale, error) {
	var m saleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": saleID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tiersale.ErrSaleNotFound
		}
		return nil, fmt.Errorf("tiersale/mongo: get sale: %w", err)
	}
	return fromSaleModel(&m)
}

func (s *Store) ListSales(ctx context.Context, opts sale.ListOpts) ([]*sale.Sale, error) {
	var models []saleModel

	filter := bson.M{}
	if opts.Owner != "" {
		filter["owner"] = opts.Owner
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tiersale/mongo: list sales: %w", err)
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
	var m participantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"sale_id": saleID.String(), "address": address}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tiersale.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("tiersale/mongo: get participant: %w", err)
	}
	return fromParticipantModel(&m)
}

func (s *Store) ListParticipants(ctx context.Context, saleID id.SaleID, opts participant.ListOpts) ([]*participant.Ledger, error) {
	var models []participantModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{"sale_id": saleID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tiersale/mongo: list participants: %w", err)
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
	var m purchaseModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": purchaseID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tiersale.ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("tiersale/mongo: get purchase: %w", err)
	}
	return fromPurchaseModel(&m)
}

func (s *Store) ListPurchases(ctx context.Context, saleID id.SaleID, opts purchase.ListOpts) ([]*purchase.Purchase, error) {
	var models []purchaseModel

	filter := bson.M{"sale_id": saleID.String()}
	if opts.Participant != "" {
		filter["participant"] = opts.Participant
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tiersale/mongo: list purchases: %w", err)
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
	res, err := s.mdb.NewUpdate((*purchaseModel)(nil)).
		Filter(bson.M{"_id": purchaseID.String()}).
		Set("status", string(status)).
		Set("reason", reason).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tiersale/mongo: update purchase status: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tiersale.ErrPurchaseNotFound
	}
	return nil
}

// ==================== Commit ====================

// CommitPurchase claims the sale document with a version filter, then
// upserts the participant ledger and inserts the receipt, all inside one
// multi-document transaction. Transactions need a replica set or sharded
// cluster; a standalone server rejects the commit.
func (s *Store) CommitPurchase(ctx context.Context, sl *sale.Sale, l *participant.Ledger, p *purchase.Purchase) error {
	session, err := s.mdb.Client().StartSession()
	if err != nil {
		return fmt.Errorf("tiersale/mongo: start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, s.commit(ctx, sl, l, p)
	})
	return err
}

// commit runs the three writes of a purchase. ctx carries the session, so
// every write joins the caller's transaction; it may run more than once when
// the server reports a transient transaction error.
func (s *Store) commit(ctx context.Context, sl *sale.Sale, l *participant.Ledger, p *purchase.Purchase) error {
	sm := toSaleModel(sl)

	res, err := s.mdb.NewUpdate((*saleModel)(nil)).
		Filter(bson.M{"_id": sm.ID, "version": sm.Version - 1}).
		Set("tiers", sm.Tiers).
		Set("current_tier", sm.CurrentTier).
		Set("total_sold", sm.TotalSold).
		Set("version", sm.Version).
		Set("updated_at", sm.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tiersale/mongo: claim sale %s: %w", sm.ID, err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetSale(ctx, sl.ID); err != nil {
			return err
		}
		return tiersale.ErrConcurrentUpdate
	}

	lm := toParticipantModel(l)
	_, err = s.mdb.NewUpdate(lm).
		Filter(bson.M{"sale_id": lm.SaleID, "address": lm.Address}).
		SetUpdate(bson.M{
			"$set": bson.M{
				"contributions": lm.Contributions,
				"tokens_bought": lm.TokensBought,
				"updated_at":    lm.UpdatedAt,
			},
			"$setOnInsert": bson.M{
				"_id":        lm.ID,
				"sale_id":    lm.SaleID,
				"address":    lm.Address,
				"created_at": lm.CreatedAt,
			},
		}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tiersale/mongo: write participant %s: %w", lm.Address, err)
	}

	if _, err := s.mdb.NewInsert(toPurchaseModel(p)).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("tiersale/mongo: insert purchase %s: %w", p.ID, tiersale.ErrAlreadyExists)
		}
		return fmt.Errorf("tiersale/mongo: insert purchase %s: %w", p.ID, err)
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tiersale collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSales: {
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "_id", Value: 1}, {Key: "version", Value: 1}}},
		},
		colParticipants: {
			{
				Keys:    bson.D{{Key: "sale_id", Value: 1}, {Key: "address", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "sale_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colPurchases: {
			{Keys: bson.D{{Key: "sale_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "sale_id", Value: 1}, {Key: "participant", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
	}
}

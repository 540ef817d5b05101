package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the tiersale store.
var Migrations = migrate.NewGroup("tiersale")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tiersale_sales",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tiersale_sales (
    id           TEXT PRIMARY KEY,
    owner        TEXT NOT NULL,
    tiers        JSONB NOT NULL,
    current_tier INT NOT NULL DEFAULT 0,
    total_sold   TEXT NOT NULL DEFAULT '0',
    settlement   JSONB NOT NULL DEFAULT '{}',
    version      BIGINT NOT NULL DEFAULT 0,
    metadata     JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tiersale_sales_owner ON tiersale_sales (owner, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tiersale_sales`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tiersale_participants",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tiersale_participants (
    id            TEXT PRIMARY KEY,
    sale_id       TEXT NOT NULL REFERENCES tiersale_sales (id),
    address       TEXT NOT NULL,
    contributions JSONB NOT NULL DEFAULT '[]',
    tokens_bought TEXT NOT NULL DEFAULT '0',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tiersale_participants_sale_address ON tiersale_participants (sale_id, address);
CREATE INDEX IF NOT EXISTS idx_tiersale_participants_created ON tiersale_participants (sale_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tiersale_participants`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tiersale_purchases",
			Version: "20250101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tiersale_purchases (
    id                     TEXT PRIMARY KEY,
    sale_id                TEXT NOT NULL REFERENCES tiersale_sales (id),
    participant            TEXT NOT NULL,
    ledger_id              TEXT NOT NULL DEFAULT '',
    tier_index             INT NOT NULL,
    payment                TEXT NOT NULL,
    allocation             TEXT NOT NULL,
    price                  TEXT NOT NULL,
    advanced               BOOLEAN NOT NULL DEFAULT FALSE,
    status                 TEXT NOT NULL DEFAULT 'committed',
    reason                 TEXT NOT NULL DEFAULT '',
    payment_transfer_id    TEXT NOT NULL DEFAULT '',
    allocation_transfer_id TEXT NOT NULL DEFAULT '',
    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tiersale_purchases_sale ON tiersale_purchases (sale_id, created_at);
CREATE INDEX IF NOT EXISTS idx_tiersale_purchases_participant ON tiersale_purchases (sale_id, participant);
CREATE INDEX IF NOT EXISTS idx_tiersale_purchases_status ON tiersale_purchases (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tiersale_purchases`)
				return err
			},
		},
	)
}

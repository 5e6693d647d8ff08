package store

import (
	"context"
	"database/sql"
	"math/big"

	"github.com/pkg/errors"

	_ "github.com/lib/pq"

	"github.com/bridgerelay/coordinator/internal/bridge"
)

// Postgres is the production Store, backed by database/sql and lib/pq.
// Tables: events_a, events_b, processed, cursors (one row per chain),
// token_map.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects and idempotently creates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "store: open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "store: ping postgres")
	}
	p := &Postgres{db: db}
	if err := p.migrate(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events_a (
			src_tx TEXT PRIMARY KEY,
			user_a TEXT NOT NULL,
			token_a TEXT NOT NULL,
			amount NUMERIC(78,0) NOT NULL,
			recipient_b TEXT NOT NULL,
			src_block BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS events_b (
			src_tx TEXT PRIMARY KEY,
			user_b TEXT NOT NULL,
			asset_id INTEGER NOT NULL,
			amount NUMERIC(78,0) NOT NULL,
			recipient_a TEXT NOT NULL,
			src_block BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS processed (
			chain TEXT NOT NULL,
			src_tx TEXT NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (chain, src_tx)
		)`,
		`CREATE TABLE IF NOT EXISTS cursors (
			chain TEXT PRIMARY KEY,
			last_confirmed_block BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS token_map (
			token_a TEXT PRIMARY KEY,
			asset_id INTEGER NOT NULL UNIQUE
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "store: migrate")
		}
	}
	return nil
}

func (p *Postgres) InsertEvent(ctx context.Context, ev *bridge.BridgeEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	switch ev.Kind {
	case bridge.KindLockOnA:
		l := ev.Lock
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO events_a (src_tx, user_a, token_a, amount, recipient_b, src_block)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (src_tx) DO NOTHING`,
			l.SrcTx, hexEncode(l.UserA[:]), hexEncode(l.TokenA[:]), l.Amount.String(), hexEncode(l.RecipientB[:]), l.SrcBlock)
		return errors.Wrap(err, "store: insert events_a")
	case bridge.KindBurnOnB:
		b := ev.Burn
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO events_b (src_tx, user_b, asset_id, amount, recipient_a, src_block)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (src_tx) DO NOTHING`,
			b.SrcTx, hexEncode(b.UserB[:]), b.AssetID, b.Amount.String(), hexEncode(b.RecipientA[:]), b.SrcBlock)
		return errors.Wrap(err, "store: insert events_b")
	default:
		return bridge.ErrMalformedEvent
	}
}

func (p *Postgres) IsProcessed(ctx context.Context, chain bridge.Chain, srcTx string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed WHERE chain = $1 AND src_tx = $2)`,
		string(chain), srcTx).Scan(&exists)
	return exists, errors.Wrap(err, "store: is_processed")
}

func (p *Postgres) MarkProcessed(ctx context.Context, chain bridge.Chain, srcTx string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO processed (chain, src_tx) VALUES ($1, $2) ON CONFLICT (chain, src_tx) DO NOTHING`,
		string(chain), srcTx)
	return errors.Wrap(err, "store: mark_processed")
}

func (p *Postgres) Cursor(ctx context.Context, chain bridge.Chain) (uint64, error) {
	var height int64
	err := p.db.QueryRowContext(ctx,
		`SELECT last_confirmed_block FROM cursors WHERE chain = $1`, string(chain)).Scan(&height)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return uint64(height), errors.Wrap(err, "store: cursor")
}

func (p *Postgres) AdvanceCursor(ctx context.Context, chain bridge.Chain, height uint64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO cursors (chain, last_confirmed_block) VALUES ($1, $2)
		ON CONFLICT (chain) DO UPDATE SET last_confirmed_block = $2
		WHERE cursors.last_confirmed_block < $2`,
		string(chain), int64(height))
	return errors.Wrap(err, "store: advance_cursor")
}

func (p *Postgres) RegisterToken(ctx context.Context, token [20]byte, assetID uint32) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO token_map (token_a, asset_id) VALUES ($1, $2) ON CONFLICT (token_a) DO NOTHING`,
		hexEncode(token[:]), assetID)
	return errors.Wrap(err, "store: register_token")
}

func (p *Postgres) Tokens(ctx context.Context) (map[[20]byte]uint32, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT token_a, asset_id FROM token_map`)
	if err != nil {
		return nil, errors.Wrap(err, "store: tokens")
	}
	defer rows.Close()

	out := make(map[[20]byte]uint32)
	for rows.Next() {
		var tokenHex string
		var assetID uint32
		if err := rows.Scan(&tokenHex, &assetID); err != nil {
			return nil, errors.Wrap(err, "store: scan token_map row")
		}
		var token [20]byte
		if err := hexDecodeInto(token[:], tokenHex); err != nil {
			return nil, errors.Wrap(err, "store: decode token address")
		}
		out[token] = assetID
	}
	return out, errors.Wrap(rows.Err(), "store: iterate token_map")
}

func (p *Postgres) CountProcessed(ctx context.Context, chain bridge.Chain) (uint64, error) {
	var count int64
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed WHERE chain = $1`, string(chain)).Scan(&count)
	return uint64(count), errors.Wrap(err, "store: count_processed")
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 2+len(b)*2)
	out[0], out[1] = '0', 'x'
	for i, c := range b {
		out[2+i*2] = hextable[c>>4]
		out[2+i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

func hexDecodeInto(dst []byte, s string) error {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return errors.New("store: invalid hex string")
	}
	n.FillBytes(dst)
	return nil
}

var _ Store = (*Postgres)(nil)

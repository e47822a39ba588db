package accountsdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStoreConfig struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *PostgresStoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("postgres pool is required")
	}
	return nil
}

// PostgresStore persists accounts in PostgreSQL. Account creation relies on the
// primary key, so two transactions creating the same address serialize in the
// database and the loser observes ErrAccountAlreadyInUse.
type PostgresStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg PostgresStoreConfig) (*PostgresStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PostgresStore{
		log:  cfg.Logger,
		pool: cfg.Pool,
	}, nil
}

func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin postgres transaction: %w", err)
	}
	return &pgTx{
		log:      s.log,
		tx:       tx,
		versions: make(map[solana.PublicKey]uint64),
	}, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, addr solana.PublicKey) (*Account, error) {
	return getAccount(ctx, s.pool, addr)
}

func (s *PostgresStore) ForEach(ctx context.Context, fn func(*Account) error) error {
	rows, err := s.pool.Query(ctx, `SELECT address, owner, data, version FROM accounts ORDER BY address`)
	if err != nil {
		return fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var address, owner, data []byte
		var version int64
		if err := rows.Scan(&address, &owner, &data, &version); err != nil {
			return fmt.Errorf("failed to scan account: %w", err)
		}
		if err := fn(&Account{
			Address: solana.PublicKeyFromBytes(address),
			Owner:   solana.PublicKeyFromBytes(owner),
			Data:    data,
			Version: uint64(version),
		}); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *PostgresStore) LatestSlot(ctx context.Context) (uint64, error) {
	var slot int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(slot), 0) FROM processed_signatures`).Scan(&slot); err != nil {
		return 0, fmt.Errorf("failed to read latest slot: %w", err)
	}
	return uint64(slot), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getAccount(ctx context.Context, q querier, addr solana.PublicKey) (*Account, error) {
	var owner, data []byte
	var version int64
	err := q.QueryRow(ctx,
		`SELECT owner, data, version FROM accounts WHERE address = $1`,
		addr[:],
	).Scan(&owner, &data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", addr, err)
	}
	return &Account{
		Address: addr,
		Owner:   solana.PublicKeyFromBytes(owner),
		Data:    data,
		Version: uint64(version),
	}, nil
}

type pgTx struct {
	log      *slog.Logger
	tx       pgx.Tx
	versions map[solana.PublicKey]uint64
	done     bool
}

func (t *pgTx) Get(ctx context.Context, addr solana.PublicKey) (*Account, error) {
	if t.done {
		return nil, ErrTxDone
	}
	acct, err := getAccount(ctx, t.tx, addr)
	if err != nil {
		return nil, err
	}
	if _, seen := t.versions[addr]; !seen {
		t.versions[addr] = acct.Version
	}
	return acct, nil
}

func (t *pgTx) Create(ctx context.Context, acct *Account) error {
	if t.done {
		return ErrTxDone
	}
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO accounts (address, owner, data, version) VALUES ($1, $2, $3, 1)
		 ON CONFLICT (address) DO NOTHING`,
		acct.Address[:], acct.Owner[:], acct.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to create account %s: %w", acct.Address, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyInUse, acct.Address)
	}
	t.versions[acct.Address] = 1
	acct.Version = 1
	return nil
}

func (t *pgTx) Update(ctx context.Context, acct *Account) error {
	if t.done {
		return ErrTxDone
	}
	expected, seen := t.versions[acct.Address]
	if !seen {
		current, err := t.Get(ctx, acct.Address)
		if err != nil {
			return err
		}
		expected = current.Version
	}

	tag, err := t.tx.Exec(ctx,
		`UPDATE accounts SET owner = $2, data = $3, version = version + 1, updated_at = now()
		 WHERE address = $1 AND version = $4`,
		acct.Address[:], acct.Owner[:], acct.Data, int64(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to update account %s: %w", acct.Address, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := getAccount(ctx, t.tx, acct.Address); errors.Is(err, ErrAccountNotFound) {
			return err
		}
		return fmt.Errorf("%w: %s", ErrConflict, acct.Address)
	}
	t.versions[acct.Address] = expected + 1
	acct.Version = expected + 1
	return nil
}

func (t *pgTx) RecordSignature(ctx context.Context, sig solana.Signature, slot uint64) error {
	if t.done {
		return ErrTxDone
	}
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO processed_signatures (signature, slot) VALUES ($1, $2)
		 ON CONFLICT (signature) DO NOTHING`,
		sig[:], int64(slot),
	)
	if err != nil {
		return fmt.Errorf("failed to record signature: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSignatureAlreadyProcessed
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit postgres transaction: %w", err)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		t.log.Warn("accountsdb/postgres: rollback failed", "error", err)
		return fmt.Errorf("failed to roll back postgres transaction: %w", err)
	}
	return nil
}

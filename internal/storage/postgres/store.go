package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"oraclegate/internal/model"
	"oraclegate/internal/storage"
)

const uniqueViolation = "23505"

// Store provides Postgres persistence for profiles, payments, and
// chat messages.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema creates the tables if they do not exist. The unique
// index on payments.tx_hash is what makes verification idempotent
// across concurrent processes.
func (s *Store) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			wallet_address TEXT NOT NULL UNIQUE,
			username TEXT,
			has_basic_access BOOLEAN NOT NULL DEFAULT FALSE,
			dev_tier TEXT NOT NULL DEFAULT 'none',
			dev_expires_at TIMESTAMPTZ,
			preferred_language TEXT NOT NULL DEFAULT 'en',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			wallet_address TEXT NOT NULL,
			tx_hash TEXT NOT NULL UNIQUE,
			payment_type TEXT NOT NULL,
			amount_usd DOUBLE PRECISION NOT NULL,
			amount_over DOUBLE PRECISION NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_wallet ON payments (wallet_address)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			wallet_address TEXT NOT NULL,
			username TEXT NOT NULL,
			content TEXT NOT NULL,
			source_lang TEXT NOT NULL DEFAULT 'en',
			message_type TEXT NOT NULL DEFAULT 'user',
			chat_room TEXT NOT NULL DEFAULT 'world',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_room ON chat_messages (chat_room, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// GetOrCreateProfile inserts a default profile on first connect. The
// ON CONFLICT clause resolves the race between two first connects by
// returning the row whichever insert won.
func (s *Store) GetOrCreateProfile(ctx context.Context, wallet string) (*model.Profile, error) {
	key := model.NormalizeAddress(wallet)

	p, err := s.GetProfile(ctx, key)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO profiles (wallet_address)
		VALUES ($1)
		ON CONFLICT (wallet_address) DO UPDATE SET updated_at = profiles.updated_at
		RETURNING id, wallet_address, COALESCE(username, ''), has_basic_access,
			dev_tier, dev_expires_at, preferred_language, created_at, updated_at
	`, key)
	return scanProfile(row)
}

func (s *Store) GetProfile(ctx context.Context, wallet string) (*model.Profile, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, wallet_address, COALESCE(username, ''), has_basic_access,
			dev_tier, dev_expires_at, preferred_language, created_at, updated_at
		FROM profiles
		WHERE wallet_address = $1
	`, model.NormalizeAddress(wallet))

	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) GrantBasic(ctx context.Context, wallet string) error {
	return s.updateProfile(ctx, wallet, `has_basic_access = TRUE`)
}

func (s *Store) SetDevTier(ctx context.Context, wallet string, tier model.DevTier, expiresAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET dev_tier = $2, dev_expires_at = $3, updated_at = now()
		WHERE wallet_address = $1
	`, model.NormalizeAddress(wallet), string(tier), expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) SetDevExpiry(ctx context.Context, wallet string, expiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET dev_expires_at = $2, updated_at = now()
		WHERE wallet_address = $1
	`, model.NormalizeAddress(wallet), expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) RevokeAccess(ctx context.Context, wallet string) error {
	return s.updateProfile(ctx, wallet,
		`has_basic_access = FALSE, dev_tier = 'none', dev_expires_at = NULL`)
}

func (s *Store) SetUsername(ctx context.Context, wallet string, username string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET username = $2, updated_at = now()
		WHERE wallet_address = $1
	`, model.NormalizeAddress(wallet), username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ProfileStats(ctx context.Context) (total, basic, dev int, err error) {
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE has_basic_access),
			COUNT(*) FILTER (WHERE dev_tier <> 'none')
		FROM profiles
	`)
	if err := row.Scan(&total, &basic, &dev); err != nil {
		return 0, 0, 0, err
	}
	return total, basic, dev, nil
}

func (s *Store) GetPayment(ctx context.Context, txHash string) (*model.PaymentRecord, error) {
	var rec model.PaymentRecord
	row := s.pool.QueryRow(ctx, `
		SELECT id, wallet_address, tx_hash, payment_type, amount_usd, amount_over, status, created_at
		FROM payments
		WHERE tx_hash = $1
	`, txHash)
	err := row.Scan(&rec.ID, &rec.WalletAddress, &rec.TxHash, &rec.PaymentType,
		&rec.AmountUSD, &rec.AmountOver, &rec.Status, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// InsertPayment appends one payment row. The tx_hash unique constraint
// is the arbiter when two verifications race past the pre-check.
func (s *Store) InsertPayment(ctx context.Context, rec *model.PaymentRecord) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO payments (wallet_address, tx_hash, payment_type, amount_usd, amount_over, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`,
		model.NormalizeAddress(rec.WalletAddress),
		rec.TxHash,
		string(rec.PaymentType),
		rec.AmountUSD,
		rec.AmountOver,
		rec.Status,
	)
	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return storage.ErrDuplicateTx
		}
		return err
	}
	return nil
}

func (s *Store) PaymentTotals(ctx context.Context) (int, float64, error) {
	var count int
	var revenue float64
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount_usd), 0)
		FROM payments
		WHERE status = 'confirmed'
	`)
	if err := row.Scan(&count, &revenue); err != nil {
		return 0, 0, err
	}
	return count, revenue, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (wallet_address, username, content, source_lang, message_type, chat_room)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`,
		model.NormalizeAddress(msg.WalletAddress),
		msg.Username,
		msg.Content,
		msg.SourceLang,
		msg.MessageType,
		msg.ChatRoom,
	)
	return row.Scan(&msg.ID, &msg.CreatedAt)
}

func (s *Store) updateProfile(ctx context.Context, wallet string, setClause string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profiles SET `+setClause+`, updated_at = now() WHERE wallet_address = $1`,
		model.NormalizeAddress(wallet))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	var tier string
	err := row.Scan(&p.ID, &p.WalletAddress, &p.Username, &p.HasBasicAccess,
		&tier, &p.DevExpiresAt, &p.PreferredLanguage, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.DevTier = model.DevTier(tier)
	return &p, nil
}

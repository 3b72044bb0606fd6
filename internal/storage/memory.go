package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"oraclegate/internal/model"
)

// MemoryStore is an in-process implementation of ProfileStore,
// PaymentLedger, and ChatLog. It backs tests and one-shot CLI runs
// where no database is configured.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
	payments map[string]*model.PaymentRecord
	messages []*model.ChatMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*model.Profile),
		payments: make(map[string]*model.PaymentRecord),
	}
}

func (s *MemoryStore) GetOrCreateProfile(ctx context.Context, wallet string) (*model.Profile, error) {
	key := model.NormalizeAddress(wallet)

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.profiles[key]; ok {
		return cloneProfile(p), nil
	}

	now := time.Now().UTC()
	p := &model.Profile{
		ID:                uuid.NewString(),
		WalletAddress:     key,
		DevTier:           model.TierNone,
		PreferredLanguage: "en",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	s.profiles[key] = p
	return cloneProfile(p), nil
}

func (s *MemoryStore) GetProfile(ctx context.Context, wallet string) (*model.Profile, error) {
	key := model.NormalizeAddress(wallet)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProfile(p), nil
}

func (s *MemoryStore) GrantBasic(ctx context.Context, wallet string) error {
	return s.mutateProfile(wallet, func(p *model.Profile) {
		p.HasBasicAccess = true
	})
}

func (s *MemoryStore) SetDevTier(ctx context.Context, wallet string, tier model.DevTier, expiresAt *time.Time) error {
	return s.mutateProfile(wallet, func(p *model.Profile) {
		p.DevTier = tier
		p.DevExpiresAt = cloneTime(expiresAt)
	})
}

func (s *MemoryStore) SetDevExpiry(ctx context.Context, wallet string, expiresAt time.Time) error {
	return s.mutateProfile(wallet, func(p *model.Profile) {
		t := expiresAt
		p.DevExpiresAt = &t
	})
}

func (s *MemoryStore) RevokeAccess(ctx context.Context, wallet string) error {
	return s.mutateProfile(wallet, func(p *model.Profile) {
		p.HasBasicAccess = false
		p.DevTier = model.TierNone
		p.DevExpiresAt = nil
	})
}

func (s *MemoryStore) SetUsername(ctx context.Context, wallet string, username string) error {
	return s.mutateProfile(wallet, func(p *model.Profile) {
		p.Username = username
	})
}

func (s *MemoryStore) ProfileStats(ctx context.Context) (total, basic, dev int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.profiles {
		total++
		if p.HasBasicAccess {
			basic++
		}
		if p.DevTier != model.TierNone && p.DevTier != "" {
			dev++
		}
	}
	return total, basic, dev, nil
}

func (s *MemoryStore) GetPayment(ctx context.Context, txHash string) (*model.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.payments[txHash]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (s *MemoryStore) InsertPayment(ctx context.Context, rec *model.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payments[rec.TxHash]; ok {
		return ErrDuplicateTx
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()
	stored := *rec
	s.payments[rec.TxHash] = &stored
	return nil
}

func (s *MemoryStore) PaymentTotals(ctx context.Context) (int, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var revenue float64
	for _, rec := range s.payments {
		revenue += rec.AmountUSD
	}
	return len(s.payments), revenue, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *msg
	s.messages = append(s.messages, &stored)
	return nil
}

// Messages returns a snapshot of appended chat messages.
func (s *MemoryStore) Messages() []*model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.ChatMessage, len(s.messages))
	for i, m := range s.messages {
		copied := *m
		out[i] = &copied
	}
	return out
}

func (s *MemoryStore) mutateProfile(wallet string, fn func(*model.Profile)) error {
	key := model.NormalizeAddress(wallet)

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[key]
	if !ok {
		return ErrNotFound
	}
	fn(p)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func cloneProfile(p *model.Profile) *model.Profile {
	out := *p
	out.DevExpiresAt = cloneTime(p.DevExpiresAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}

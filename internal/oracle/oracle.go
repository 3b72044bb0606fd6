// Package oracle answers user questions through a text-completion
// provider, but only after the wallet's paid access is confirmed.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"oraclegate/internal/access"
	"oraclegate/internal/model"
	"oraclegate/internal/storage"
)

var (
	// ErrProfileNotFound means the wallet never connected.
	ErrProfileNotFound = errors.New("user profile not found")
	// ErrAccessRequired means neither basic nor dev access is active.
	ErrAccessRequired = errors.New("basic or dev access required")
)

const oracleUsername = "Oracle AI"

const systemPromptFormat = `You are the Oracle, a wise and knowledgeable AI assistant specializing in cryptocurrency, blockchain technology, and Web3.

You provide accurate, helpful, and concise answers. You are friendly but professional.

Respond in %s language if the user's message is in that language, otherwise respond in English.`

// Request is one oracle question.
type Request struct {
	WalletAddress string `json:"wallet_address"`
	Message       string `json:"message"`
	Language      string `json:"language"`
}

// Response carries the generated reply.
type Response struct {
	Reply      string `json:"response"`
	TokensUsed int    `json:"tokens_used"`
}

// Service gates completion requests on paid access and appends the
// reply to the oracle chat room.
type Service struct {
	profiles  storage.ProfileStore
	chat      storage.ChatLog
	completer Completer
	logger    *zap.Logger
	now       func() time.Time
}

// NewService builds the oracle service.
func NewService(profiles storage.ProfileStore, chat storage.ChatLog, completer Completer, logger *zap.Logger) (*Service, error) {
	if profiles == nil {
		return nil, fmt.Errorf("profile store is nil")
	}
	if completer == nil {
		return nil, fmt.Errorf("completer is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		profiles:  profiles,
		chat:      chat,
		completer: completer,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Respond answers one question for an entitled wallet. The user's
// message is already in the chat log via the chat transport; only the
// reply is appended here.
func (s *Service) Respond(ctx context.Context, req Request) (*Response, error) {
	if req.WalletAddress == "" || req.Message == "" {
		return nil, fmt.Errorf("wallet_address and message are required")
	}
	lang := req.Language
	if lang == "" {
		lang = "en"
	}

	profile, err := s.profiles.GetProfile(ctx, req.WalletAddress)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	if !access.HasAnyPaid(profile, s.now()) {
		return nil, ErrAccessRequired
	}

	reply, tokens, err := s.completer.Complete(ctx, fmt.Sprintf(systemPromptFormat, lang), req.Message)
	if err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}

	if s.chat != nil {
		msg := &model.ChatMessage{
			WalletAddress: model.NormalizeAddress(req.WalletAddress),
			Username:      oracleUsername,
			Content:       reply,
			SourceLang:    lang,
			MessageType:   "oracle",
			ChatRoom:      "oracle",
		}
		if err := s.chat.AppendMessage(ctx, msg); err != nil {
			s.logger.Warn("failed to store oracle reply", zap.Error(err))
		}
	}

	s.logger.Info("oracle reply generated",
		zap.String("wallet", model.NormalizeAddress(req.WalletAddress)),
		zap.Int("tokens", tokens))

	return &Response{Reply: reply, TokensUsed: tokens}, nil
}

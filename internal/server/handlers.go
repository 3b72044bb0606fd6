package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"oraclegate/internal/access"
	"oraclegate/internal/admin"
	"oraclegate/internal/model"
	"oraclegate/internal/oracle"
	"oraclegate/internal/storage"
	"oraclegate/internal/verify"
)

// PaymentHandler serves the payment verification entry point.
type PaymentHandler struct {
	verifier *verify.Verifier
}

func NewPaymentHandler(verifier *verify.Verifier) *PaymentHandler {
	return &PaymentHandler{verifier: verifier}
}

type verifySuccessResponse struct {
	Success     bool    `json:"success"`
	PaymentID   string  `json:"payment_id"`
	PaymentType string  `json:"payment_type"`
	ExpiresAt   *string `json:"expires_at"`
	Message     string  `json:"message"`
}

type verifyFailureResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	PaymentID string `json:"payment_id,omitempty"`
	Retryable bool   `json:"retryable"`
}

func (h *PaymentHandler) Verify(c echo.Context) error {
	var req verify.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, verifyFailureResponse{
			Error: "invalid request body",
			Kind:  string(verify.KindInvalidRequest),
		})
	}

	res, verr := h.verifier.Verify(c.Request().Context(), req)
	if verr != nil {
		return c.JSON(statusForKind(verr.Kind), verifyFailureResponse{
			Error:     verr.Message,
			Kind:      string(verr.Kind),
			PaymentID: verr.PaymentID,
			Retryable: verr.Retryable(),
		})
	}

	return c.JSON(http.StatusOK, verifySuccessResponse{
		Success:     true,
		PaymentID:   res.PaymentID,
		PaymentType: string(res.PaymentType),
		ExpiresAt:   formatTime(res.ExpiresAt),
		Message:     res.Message,
	})
}

func statusForKind(kind verify.FailureKind) int {
	switch kind {
	case verify.KindAlreadyProcessed:
		return http.StatusConflict
	case verify.KindTransactionNotFound:
		return http.StatusNotFound
	case verify.KindPendingConfirmation:
		return http.StatusAccepted
	case verify.KindPersistenceFailure:
		return http.StatusInternalServerError
	case verify.KindInvalidRequest, verify.KindWrongRecipient,
		verify.KindSenderMismatch, verify.KindTransactionReverted,
		verify.KindUnknownTier:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// AdminHandler serves the privileged action entry point.
type AdminHandler struct {
	service *admin.Service
}

func NewAdminHandler(service *admin.Service) *AdminHandler {
	return &AdminHandler{service: service}
}

type adminRequest struct {
	Action       string `json:"action"`
	AdminWallet  string `json:"admin_wallet"`
	TargetWallet string `json:"target_wallet"`
	DevTier      string `json:"dev_tier"`
	Days         int    `json:"days"`
}

func (h *AdminHandler) Handle(c echo.Context) error {
	var req adminRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()

	switch req.Action {
	case "activate_basic":
		if req.TargetWallet == "" {
			return errorJSON(c, http.StatusBadRequest, "target_wallet required")
		}
		if err := h.service.ActivateBasic(ctx, req.AdminWallet, req.TargetWallet); err != nil {
			return adminError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"success": true,
			"message": "Basic access activated",
		})

	case "activate_dev":
		if req.TargetWallet == "" || req.DevTier == "" {
			return errorJSON(c, http.StatusBadRequest, "target_wallet and dev_tier required")
		}
		expiresAt, err := h.service.ActivateDev(ctx, req.AdminWallet, req.TargetWallet, model.DevTier(req.DevTier))
		if err != nil {
			return adminError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"success":    true,
			"message":    "DEV " + req.DevTier + " activated",
			"expires_at": expiresAt.UTC().Format(time.RFC3339),
		})

	case "revoke_access":
		if req.TargetWallet == "" {
			return errorJSON(c, http.StatusBadRequest, "target_wallet required")
		}
		if err := h.service.RevokeAccess(ctx, req.AdminWallet, req.TargetWallet); err != nil {
			return adminError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"success": true,
			"message": "Access revoked",
		})

	case "extend_subscription":
		if req.TargetWallet == "" || req.Days <= 0 {
			return errorJSON(c, http.StatusBadRequest, "target_wallet and a positive days value required")
		}
		expiresAt, err := h.service.ExtendSubscription(ctx, req.AdminWallet, req.TargetWallet, req.Days)
		if err != nil {
			return adminError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"success":    true,
			"message":    "Subscription extended",
			"expires_at": expiresAt.UTC().Format(time.RFC3339),
		})

	case "get_stats":
		stats, err := h.service.Stats(ctx, req.AdminWallet)
		if err != nil {
			return adminError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"success": true,
			"stats":   stats,
		})

	default:
		return errorJSON(c, http.StatusBadRequest, "unknown action")
	}
}

func adminError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, admin.ErrUnauthorized):
		return errorJSON(c, http.StatusForbidden, "Unauthorized: Admin access required")
	case errors.Is(err, storage.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "target profile not found")
	default:
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
}

// ProfileHandler serves wallet connect and profile reads.
type ProfileHandler struct {
	profiles storage.ProfileStore
}

func NewProfileHandler(profiles storage.ProfileStore) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type connectRequest struct {
	WalletAddress string `json:"wallet_address"`
}

type profileResponse struct {
	Profile  *model.Profile `json:"profile"`
	HasBasic bool           `json:"has_basic"`
	HasDev   bool           `json:"has_dev"`
	Level    string         `json:"level"`
}

func (h *ProfileHandler) Connect(c echo.Context) error {
	var req connectRequest
	if err := c.Bind(&req); err != nil || req.WalletAddress == "" {
		return errorJSON(c, http.StatusBadRequest, "wallet_address required")
	}

	profile, err := h.profiles.GetOrCreateProfile(c.Request().Context(), req.WalletAddress)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "failed to load profile")
	}
	return c.JSON(http.StatusOK, profileView(profile))
}

func (h *ProfileHandler) Get(c echo.Context) error {
	profile, err := h.profiles.GetProfile(c.Request().Context(), c.Param("wallet"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errorJSON(c, http.StatusNotFound, "profile not found")
		}
		return errorJSON(c, http.StatusInternalServerError, "failed to load profile")
	}
	return c.JSON(http.StatusOK, profileView(profile))
}

type usernameRequest struct {
	Username string `json:"username"`
}

func (h *ProfileHandler) SetUsername(c echo.Context) error {
	var req usernameRequest
	if err := c.Bind(&req); err != nil || req.Username == "" {
		return errorJSON(c, http.StatusBadRequest, "username required")
	}

	err := h.profiles.SetUsername(c.Request().Context(), c.Param("wallet"), req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return errorJSON(c, http.StatusNotFound, "profile not found")
		}
		return errorJSON(c, http.StatusInternalServerError, "failed to update username")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func profileView(p *model.Profile) profileResponse {
	now := time.Now()
	return profileResponse{
		Profile:  p,
		HasBasic: access.HasBasic(p),
		HasDev:   access.HasDev(p, now),
		Level:    access.Level(p, now),
	}
}

// OracleHandler serves gated completion requests.
type OracleHandler struct {
	service *oracle.Service
}

func NewOracleHandler(service *oracle.Service) *OracleHandler {
	return &OracleHandler{service: service}
}

func (h *OracleHandler) Respond(c echo.Context) error {
	var req oracle.Request
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.WalletAddress == "" || req.Message == "" {
		return errorJSON(c, http.StatusBadRequest, "wallet_address and message required")
	}

	res, err := h.service.Respond(c.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, oracle.ErrProfileNotFound):
			return errorJSON(c, http.StatusNotFound, "User profile not found. Please connect wallet first.")
		case errors.Is(err, oracle.ErrAccessRequired):
			return c.JSON(http.StatusForbidden, map[string]any{
				"error":            "Basic or DEV access required for AI Oracle responses",
				"upgrade_required": true,
			})
		default:
			return errorJSON(c, http.StatusInternalServerError, "Failed to get Oracle response")
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":     true,
		"response":    res.Reply,
		"tokens_used": res.TokensUsed,
	})
}

func errorJSON(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/parking-ledger/internal/config"
	"github.com/iliyamo/parking-ledger/internal/ledger"
	"github.com/iliyamo/parking-ledger/internal/model"
	"github.com/iliyamo/parking-ledger/internal/money"
	"github.com/iliyamo/parking-ledger/internal/repository"
	"github.com/iliyamo/parking-ledger/internal/utils"
)

// UserStore is the account storage the auth endpoints need.
type UserStore interface {
	Create(ctx context.Context, u model.User) error
	GetByAddress(ctx context.Context, address string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
}

// TokenStore persists refresh token hashes.
type TokenStore interface {
	StoreRefresh(ctx context.Context, address, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (string, error)
	Rotate(ctx context.Context, address, oldHash, newHash string, exp time.Time) error
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, address string) error
}

// BalanceReader reports wallet balances for /v1/me.
type BalanceReader interface {
	BalanceOf(addr ledger.Address) money.Cents
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Users    UserStore
	Tokens   TokenStore
	Balances BalanceReader
	Log      logrus.FieldLogger
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore, b BalanceReader, log logrus.FieldLogger) *AuthHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Balances: b, Log: log}
}

type registerReq struct {
	Address  string `json:"address"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type loginReq struct {
	Address  string `json:"address"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	Address  string  `json:"address"`
	FullName string  `json:"full_name"`
	Email    *string `json:"email"`
	Role     string  `json:"role"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func toUserPart(u model.User) userPart {
	return userPart{Address: u.Address, FullName: u.FullName, Email: u.Email, Role: u.Role}
}

// issue creates an access token and a stored refresh token.
func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.Address, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.Address, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    toUserPart(u),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

// Register creates an account for a wallet address and returns tokens.
// The configured owner address gets the OWNER role; everyone else is a
// CUSTOMER.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	addr, err := ledger.ParseAddress(req.Address)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if errors.Is(err, utils.ErrPasswordLength) {
		return badRequest(c, err.Error())
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "hash password failed", "code": "INTERNAL"})
	}
	role := model.RoleCustomer
	if strings.EqualFold(addr.String(), h.Cfg.OwnerAddress) {
		role = model.RoleOwner
	}
	u := model.User{
		Address:      addr.String(),
		FullName:     strings.TrimSpace(req.FullName),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if e := strings.ToLower(strings.TrimSpace(req.Email)); e != "" {
		u.Email = &e
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "address or email already registered", "code": "USER_EXISTS"})
		}
		h.Log.WithError(err).Error("create user failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed", "code": "INTERNAL"})
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		h.Log.WithError(err).Error("issue tokens failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed", "code": "INTERNAL"})
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies a password for an address or email and returns a new
// token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Password == "" || (strings.TrimSpace(req.Address) == "" && strings.TrimSpace(req.Email) == "") {
		return badRequest(c, "address or email, and password are required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	var (
		u   model.User
		err error
	)
	if strings.TrimSpace(req.Address) != "" {
		u, err = h.Users.GetByAddress(ctx, req.Address)
	} else {
		u, err = h.Users.GetByEmail(ctx, req.Email)
	}
	if errors.Is(err, repository.ErrUserNotFound) {
		return invalidCredentials(c)
	}
	if err != nil {
		h.Log.WithError(err).Error("load user failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed", "code": "INTERNAL"})
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return invalidCredentials(c)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		h.Log.WithError(err).Error("issue tokens failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed", "code": "INTERNAL"})
	}
	return c.JSON(http.StatusOK, resp)
}

func invalidCredentials(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials", "code": "UNAUTHENTICATED"})
}

// Refresh exchanges a refresh token for a new pair. The old token is
// revoked in the same transaction that stores the new one.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	oldHash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	address, err := h.Tokens.ValidateRefresh(ctx, oldHash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh", "code": "UNAUTHENTICATED"})
	}
	u, err := h.Users.GetByAddress(ctx, address)
	if err != nil || !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh", "code": "UNAUTHENTICATED"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.Address, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed", "code": "INTERNAL"})
	}
	next, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed", "code": "INTERNAL"})
	}
	if err := h.Tokens.Rotate(ctx, u.Address, oldHash, utils.HashRefreshRaw(next.Raw), next.Exp); err != nil {
		if errors.Is(err, repository.ErrTokenInvalid) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh", "code": "UNAUTHENTICATED"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "rotate refresh failed", "code": "INTERNAL"})
	}
	return c.JSON(http.StatusOK, authResp{
		User:    toUserPart(u),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: next.Raw, Expires: next.Exp},
	})
}

// Logout revokes the refresh token in the body, or every refresh token of
// the bearer when no body token is given.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if raw != "" {
		hash := utils.HashRefreshRaw(raw)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token", "code": "UNAUTHENTICATED"})
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed", "code": "INTERNAL"})
		}
		return c.NoContent(http.StatusNoContent)
	}

	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return badRequest(c, "provide Authorization header or refresh_token")
	}
	claims, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "code": "UNAUTHENTICATED"})
	}
	if err := h.Tokens.RevokeAllForUser(ctx, strings.ToLower(claims.Subject)); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed", "code": "INTERNAL"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's profile and wallet balance.
func (h *AuthHandler) Me(c echo.Context) error {
	caller, ok := ledger.CallerFrom(c.Request().Context())
	if !ok {
		return ledgerError(c, h.Log, ledger.ErrUnauthorized)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	u, err := h.Users.GetByAddress(ctx, caller.String())
	if errors.Is(err, repository.ErrUserNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found", "code": "USER_NOT_FOUND"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load user failed", "code": "INTERNAL"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user":    toUserPart(u),
		"balance": h.Balances.BalanceOf(caller),
	})
}

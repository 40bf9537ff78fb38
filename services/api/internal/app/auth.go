package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"studycompanion/internal/util"
	"studycompanion/pkg/auth"
	"studycompanion/pkg/domain"
	"studycompanion/pkg/store"
)

const (
	maxUsernameLength = 64
	resetTokenLength  = 32
)

// AuthResult is returned by every flow that issues credentials.
type AuthResult struct {
	User         domain.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	RefreshToken string      `json:"refreshToken"`
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", invalidf("email required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalidf("invalid email address")
	}
	return email, nil
}

func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return "", invalidf("username must be at most %d characters", maxUsernameLength)
	}
	return username, nil
}

func validatePassword(password string) error {
	if err := auth.ValidatePassword(password); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

// SignUp creates an account and signs it in.
func (a *App) SignUp(ctx context.Context, email, password, username string) (AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return AuthResult{}, err
	}
	if username, err = normalizeUsername(username); err != nil {
		return AuthResult{}, err
	}
	if err := validatePassword(password); err != nil {
		return AuthResult{}, err
	}
	exists, err := a.store.HasUserEmail(ctx, email)
	if err != nil {
		return AuthResult{}, storeErr("check email", err)
	}
	if exists {
		return AuthResult{}, ErrEmailExists
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}
	now := a.clock()
	user := domain.User{
		ID:           util.NewUUID(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return AuthResult{}, ErrEmailExists
		}
		return AuthResult{}, storeErr("save user", err)
	}
	return a.issueTokens(ctx, user)
}

// Login checks credentials. Unknown email and wrong password are reported
// identically.
func (a *App) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return AuthResult{}, invalidf("email and password required")
	}
	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return AuthResult{}, storeErr("fetch user", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}
	if user.Status == domain.StatusDisabled {
		return AuthResult{}, ErrUnauthorized
	}
	return a.issueTokens(ctx, user)
}

// Logout revokes the presented access token and, when given, the refresh
// token. A refresh token issued to someone else is left alone.
func (a *App) Logout(ctx context.Context, user domain.User, accessToken, refreshToken string) error {
	if err := a.sessions.DeleteSession(ctx, accessToken); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	owner, ok, err := a.refreshTokens.TokenOwner(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("resolve refresh token: %w", err)
	}
	if !ok {
		return nil
	}
	if owner != user.ID {
		util.LoggerFromContext(ctx).Warn("logout with foreign refresh token", "owner_id", owner)
		return nil
	}
	if err := a.refreshTokens.DeleteToken(ctx, refreshToken); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// Refresh rotates refreshToken and issues a new access token.
func (a *App) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return AuthResult{}, ErrInvalidRefreshToken
	}
	userID, next, err := a.refreshTokens.RotateToken(ctx, refreshToken, a.refreshTTL)
	if err != nil {
		if errors.Is(err, store.ErrInvalidRefreshToken) || errors.Is(err, store.ErrRefreshTokenReplay) {
			return AuthResult{}, ErrInvalidRefreshToken
		}
		return AuthResult{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	user, ok, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return AuthResult{}, storeErr("fetch user", err)
	}
	if !ok || user.Status == domain.StatusDisabled {
		_ = a.refreshTokens.DeleteToken(ctx, next)
		return AuthResult{}, ErrInvalidRefreshToken
	}
	session, err := a.sessions.NewSession(ctx, user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue access token: %w", err)
	}
	return AuthResult{User: user, AccessToken: session.Token, ExpiresAt: session.ExpiresAt, RefreshToken: next}, nil
}

// Authenticate resolves the user behind an access token.
func (a *App) Authenticate(ctx context.Context, accessToken string) (domain.User, error) {
	if accessToken == "" {
		return domain.User{}, ErrUnauthorized
	}
	userID, err := a.sessions.Verify(ctx, accessToken)
	if err != nil {
		if errors.Is(err, store.ErrInvalidToken) || errors.Is(err, store.ErrTokenRevoked) {
			return domain.User{}, ErrUnauthorized
		}
		return domain.User{}, fmt.Errorf("verify access token: %w", err)
	}
	user, ok, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, storeErr("fetch user", err)
	}
	if !ok || user.Status == domain.StatusDisabled {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

// UpdateProfile changes the display name and returns the stored account.
func (a *App) UpdateProfile(ctx context.Context, user domain.User, username string) (domain.User, error) {
	username, err := normalizeUsername(username)
	if err != nil {
		return domain.User{}, err
	}
	if err := a.store.UpdateUsername(ctx, user.ID, username, a.clock()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUnauthorized
		}
		return domain.User{}, storeErr("update profile", err)
	}
	return a.reloadUser(ctx, user.ID)
}

func (a *App) reloadUser(ctx context.Context, id string) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, storeErr("fetch user", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

// ChangePassword replaces the password, signs out every other session and
// returns fresh credentials for the caller.
func (a *App) ChangePassword(ctx context.Context, user domain.User, currentPassword, newPassword string) (AuthResult, error) {
	if currentPassword == "" {
		return AuthResult{}, invalidf("current password required")
	}
	if err := validatePassword(newPassword); err != nil {
		return AuthResult{}, err
	}
	user, err := a.reloadUser(ctx, user.ID)
	if err != nil {
		return AuthResult{}, err
	}
	if !auth.CheckPassword(currentPassword, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}
	if currentPassword == newPassword {
		return AuthResult{}, invalidf("new password must differ from current password")
	}
	if user, err = a.setPassword(ctx, user, newPassword); err != nil {
		return AuthResult{}, err
	}
	return a.issueTokens(ctx, user)
}

// RequestPasswordReset never reveals whether email belongs to an account.
func (a *App) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return storeErr("fetch user", err)
	}
	if !ok || user.Status == domain.StatusDisabled {
		util.LoggerFromContext(ctx).Info("password reset for unknown account")
		return nil
	}
	token, err := util.NewToken(resetTokenLength)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	if err := a.resetTokens.SaveResetToken(ctx, token, user.ID, a.resetTTL); err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	if err := a.notifier.SendPasswordReset(ctx, user.Email, token, a.clock().Add(a.resetTTL)); err != nil {
		return fmt.Errorf("send reset token: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token. Existing sessions are revoked and the
// user has to log in again.
func (a *App) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return ErrInvalidResetToken
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	userID, ok, err := a.resetTokens.ConsumeResetToken(ctx, token)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if !ok {
		return ErrInvalidResetToken
	}
	user, found, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return storeErr("fetch user", err)
	}
	if !found || user.Status == domain.StatusDisabled {
		return ErrInvalidResetToken
	}
	_, err = a.setPassword(ctx, user, newPassword)
	return err
}

// JWKS exposes the access token verification keys.
func (a *App) JWKS() []store.JWK {
	return a.sessions.JWKS()
}

func (a *App) setPassword(ctx context.Context, user domain.User, password string) (domain.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	revokeSince := a.clock()
	if err := a.store.UpdatePasswordHash(ctx, user.ID, hash, revokeSince); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUnauthorized
		}
		return domain.User{}, storeErr("update password", err)
	}
	if err := a.sessions.RevokeUserSessions(ctx, user.ID, revokeSince); err != nil {
		return domain.User{}, fmt.Errorf("revoke sessions: %w", err)
	}
	if err := a.refreshTokens.RevokeUserTokens(ctx, user.ID); err != nil {
		return domain.User{}, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return a.reloadUser(ctx, user.ID)
}

func (a *App) issueTokens(ctx context.Context, user domain.User) (AuthResult, error) {
	session, err := a.sessions.NewSession(ctx, user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := a.refreshTokens.NewToken(ctx, user.ID, a.refreshTTL)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return AuthResult{User: user, AccessToken: session.Token, ExpiresAt: session.ExpiresAt, RefreshToken: refresh}, nil
}

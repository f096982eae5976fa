// Package auth provides bcrypt-backed users and JWT bearer sessions for
// the admin API.
package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/yuhuotech/pixelhub/internal/logging"
	"github.com/yuhuotech/pixelhub/internal/metrics"
)

type contextKey string

const claimsKey contextKey = "claims"

// TokenTTL is how long an issued session token stays valid.
const TokenTTL = 24 * time.Hour

// Claims are the JWT claims carried by a session token.
type Claims struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Auth handles login and bearer-token verification.
type Auth struct {
	db     *sql.DB
	secret []byte
}

// New creates an Auth backed by the users table.
func New(db *sql.DB, jwtSecret string) *Auth {
	return &Auth{db: db, secret: []byte(jwtSecret)}
}

// EnsureAdmin creates the admin user on first run. An existing user's
// password is left alone.
func (a *Auth) EnsureAdmin(ctx context.Context, username, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	res, err := a.db.ExecContext(ctx,
		`INSERT INTO users (username, password) VALUES ($1, $2)
		 ON CONFLICT (username) DO NOTHING`,
		username, string(hashed))
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logging.Info("created admin user", zap.String("username", username))
	}
	return nil
}

// HandleLogin verifies credentials and issues a JWT.
func (a *Auth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.RecordAuthAttempt(false)
		sendAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		metrics.RecordAuthAttempt(false)
		sendAuthError(w, http.StatusBadRequest, "username and password required")
		return
	}

	var userID int
	var hashedPassword string
	err := a.db.QueryRowContext(r.Context(),
		`SELECT id, password FROM users WHERE username = $1`, req.Username).
		Scan(&userID, &hashedPassword)
	if err == sql.ErrNoRows {
		metrics.RecordAuthAttempt(false)
		logging.Warn("login failed: unknown user", zap.String("username", req.Username))
		sendAuthError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		metrics.RecordAuthAttempt(false)
		logging.Error("login database error", zap.Error(err))
		sendAuthError(w, http.StatusInternalServerError, "database error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(req.Password)); err != nil {
		metrics.RecordAuthAttempt(false)
		logging.Warn("login failed: invalid password", zap.String("username", req.Username))
		sendAuthError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := a.issueToken(userID, req.Username)
	if err != nil {
		metrics.RecordAuthAttempt(false)
		logging.Error("token issue failed", zap.Error(err))
		sendAuthError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	metrics.RecordAuthAttempt(true)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"token":      token,
		"expires_at": expiresAt,
		"username":   req.Username,
	})
}

func (a *Auth) issueToken(userID int, username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(TokenTTL)
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

func (a *Auth) validateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// claims in the request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			sendAuthError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		claims, err := a.validateToken(tokenStr)
		if err != nil {
			sendAuthError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// GetClaims returns the authenticated claims from ctx, or nil.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// WithClaims stores claims in a context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func extractToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

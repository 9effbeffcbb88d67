// Package authtest provides an in-process fake of the remote auth API for
// tests and local development.
package authtest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jmcleod/ironsession/auth"
)

const (
	accessTTL  = 15 * time.Minute
	refreshTTL = 30 * 24 * time.Hour
	issuer     = "authtest"
)

// Account is a user the fake server accepts.
type Account struct {
	User     auth.User
	Password string
	Profiles auth.Profiles
}

type failure struct {
	status  int
	message string
}

// Server is a fake auth API. The zero value is not usable; call NewServer.
type Server struct {
	mu          sync.Mutex
	accounts    map[string]Account
	secret      []byte
	revoked     map[string]bool
	loginCalls  int
	logoutCalls int
	requestIDs  []string
	loginFail   *failure
	logoutFail  *failure
	router      chi.Router
}

// NewServer returns a server that accepts the given accounts.
func NewServer(accounts ...Account) *Server {
	s := &Server{
		accounts: make(map[string]Account),
		secret:   []byte(uuid.NewString()),
		revoked:  make(map[string]bool),
	}
	for _, a := range accounts {
		s.AddAccount(a)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.recordRequestID)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)
	s.router = r
	return s
}

// Handler returns the HTTP handler serving the fake API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// AddAccount registers or replaces an account.
func (s *Server) AddAccount(a Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(a.User.Email)] = a
}

// SetProfiles replaces the profiles returned for email on the next login.
func (s *Server) SetProfiles(email string, profiles auth.Profiles) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[strings.ToLower(email)]; ok {
		a.Profiles = profiles
		s.accounts[strings.ToLower(email)] = a
	}
}

// FailLogin makes every login respond with status and a JSON message. An
// empty message sends an empty body.
func (s *Server) FailLogin(status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginFail = &failure{status: status, message: message}
}

// FailLogout makes every logout respond with status.
func (s *Server) FailLogout(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logoutFail = &failure{status: status, message: "logout unavailable"}
}

// Reset clears configured failures.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginFail = nil
	s.logoutFail = nil
}

// LoginCalls returns the number of login requests received.
func (s *Server) LoginCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginCalls
}

// LogoutCalls returns the number of logout requests received.
func (s *Server) LogoutCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoutCalls
}

// Revoked reports whether refreshToken was invalidated by a logout.
func (s *Server) Revoked(refreshToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[refreshToken]
}

// RequestIDs returns the X-Request-ID headers seen so far.
func (s *Server) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requestIDs...)
}

// Subject returns the subject claim of a token issued by this server.
func (s *Server) Subject(token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *Server) recordRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requestIDs = append(s.requestIDs, r.Header.Get("X-Request-ID"))
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.loginCalls++
	fail := s.loginFail
	s.mu.Unlock()

	if fail != nil {
		writeFailure(w, fail)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}

	s.mu.Lock()
	account, ok := s.accounts[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if !ok || account.Password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
		return
	}

	access, err := s.issue(account.User.ID, accessTTL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token issue failed"})
		return
	}
	refresh, err := s.issue(account.User.ID, refreshTTL)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token issue failed"})
		return
	}

	user := account.User
	writeJSON(w, http.StatusOK, auth.LoginResponse{
		User:         &user,
		Profiles:     account.Profiles.Clone(),
		AccessToken:  access,
		RefreshToken: refresh,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.logoutCalls++
	fail := s.logoutFail
	s.mu.Unlock()

	if fail != nil {
		writeFailure(w, fail)
		return
	}

	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body"})
		return
	}
	if _, err := s.parse(req.RefreshToken); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
		return
	}

	s.mu.Lock()
	s.revoked[req.RefreshToken] = true
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func writeFailure(w http.ResponseWriter, f *failure) {
	if f.message == "" {
		w.WriteHeader(f.status)
		return
	}
	writeJSON(w, f.status, map[string]string{"message": f.message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

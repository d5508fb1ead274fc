// Package mockauth implements an in-memory stand-in for the auth API.
//
// It serves the same contract the probe exercises (register, login, me,
// refresh-token and the account-recovery endpoints) so scenarios can run
// offline and in tests. State lives in memory and is lost on restart.
package mockauth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/c360studio/authprobe/client"
)

// BasePath is where the auth routes are mounted.
const BasePath = "/auth"

// Config holds the mock service settings.
type Config struct {
	// Secret signs access tokens (HS256).
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// RegisterLimit caps registrations per client IP per RegisterWindow (0 = unlimited).
	RegisterLimit  int
	RegisterWindow time.Duration

	// HashParams tunes argon2id. Nil uses cheap parameters suited to a mock.
	HashParams *argon2id.Params

	Logger *slog.Logger
	Now    func() time.Time
}

// DefaultConfig mirrors the real service: 15 minute access tokens,
// 7 day refresh tokens and 3 registrations per hour per IP.
func DefaultConfig() Config {
	return Config{
		Secret:         []byte("authprobe-mock-secret"),
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     7 * 24 * time.Hour,
		RegisterLimit:  3,
		RegisterWindow: time.Hour,
	}
}

var cheapHashParams = &argon2id.Params{
	Memory:      16 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Server is the mock auth service.
type Server struct {
	cfg      Config
	store    *store
	access   *accessIssuer
	validate *validator.Validate
	logger   *slog.Logger
	router   chi.Router
}

// New builds a Server from cfg, filling unset fields from DefaultConfig.
// RegisterLimit is taken as given, so a zero Config registers without limit.
func New(cfg Config) *Server {
	def := DefaultConfig()
	if len(cfg.Secret) == 0 {
		cfg.Secret = def.Secret
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = def.AccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = def.RefreshTTL
	}
	if cfg.RegisterWindow == 0 {
		cfg.RegisterWindow = def.RegisterWindow
	}
	if cfg.HashParams == nil {
		cfg.HashParams = cheapHashParams
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		cfg:      cfg,
		store:    newStore(),
		access:   &accessIssuer{secret: cfg.Secret, ttl: cfg.AccessTTL, now: cfg.Now},
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   cfg.Logger,
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

// UserCount returns the number of registered accounts.
func (s *Server) UserCount() int {
	return s.store.userCount()
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	r.Route(BasePath, func(r chi.Router) {
		register := http.HandlerFunc(s.handleRegister)
		if s.cfg.RegisterLimit > 0 {
			r.With(httprate.Limit(
				s.cfg.RegisterLimit,
				s.cfg.RegisterWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					s.writeError(w, r, http.StatusTooManyRequests, "Too many requests. Please try again later.")
				}),
			)).Post("/register", register)
		} else {
			r.Post("/register", register)
		}
		r.Post("/login", s.handleLogin)
		r.Get("/me", s.handleMe)
		r.Post("/refresh-token", s.handleRefresh)
		r.Post("/forgot-password", s.handleForgotPassword)
		r.Post("/resend-verification", s.handleResendVerification)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("probe_request_id", r.Header.Get(client.RequestIDHeader)),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("client_ip", r.RemoteAddr),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	hash, err := argon2id.CreateHash(req.Password, s.cfg.HashParams)
	if err != nil {
		s.logger.Error("hash password", slog.String("error", err.Error()))
		s.writeError(w, r, http.StatusInternalServerError, "Registration failed")
		return
	}

	u, err := s.store.createUser(req.Email, req.Name, hash)
	if err != nil {
		if errors.Is(err, errDuplicateEmail) {
			s.writeError(w, r, http.StatusConflict, "Email already registered")
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, "Registration failed")
		return
	}

	s.writeAuth(w, r, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	u, err := s.store.userByEmail(req.Email)
	if err != nil {
		s.writeError(w, r, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	match, err := argon2id.ComparePasswordAndHash(req.Password, u.PasswordHash)
	if err != nil || !match {
		s.writeError(w, r, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	s.writeAuth(w, r, http.StatusOK, u)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		s.writeError(w, r, http.StatusUnauthorized, "Full authentication is required to access this resource")
		return
	}

	email, err := s.access.verify(raw)
	if err != nil {
		s.writeError(w, r, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	u, err := s.store.userByEmail(email)
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, "User not found")
		return
	}

	s.writeJSON(w, http.StatusOK, userResponse(u))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshTokenRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	email, err := s.store.consumeRefresh(req.RefreshToken, s.cfg.Now())
	switch {
	case errors.Is(err, errExpiredRefresh):
		s.writeError(w, r, http.StatusUnauthorized, "Refresh token expired")
		return
	case err != nil:
		s.writeError(w, r, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	u, err := s.store.userByEmail(email)
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, "User not found")
		return
	}

	s.writeAuth(w, r, http.StatusOK, u)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.message("If this email exists, a password reset link has been sent."))
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if u, err := s.store.userByEmail(req.Email); err == nil && u.EmailVerified {
		s.writeJSON(w, http.StatusOK, s.message("Email is already verified. You can log in now."))
		return
	}
	s.writeJSON(w, http.StatusOK, s.message("If this email is registered and not verified, a new verification link has been sent."))
}

// decodeAndValidate writes a 400 and returns false when the body is unusable.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Malformed JSON request")
		return false
	}

	if err := s.validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		var details []string
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				details = append(details, strings.ToLower(fe.Field())+": failed "+fe.Tag()+" validation")
			}
		}
		s.writeError(w, r, http.StatusBadRequest, "Validation failed", details...)
		return false
	}
	return true
}

func (s *Server) writeAuth(w http.ResponseWriter, r *http.Request, status int, u user) {
	accessToken, err := s.access.issue(u.Email)
	if err != nil {
		s.logger.Error("issue access token", slog.String("error", err.Error()))
		s.writeError(w, r, http.StatusInternalServerError, "Token issuance failed")
		return
	}
	refreshToken := s.store.issueRefresh(u.Email, s.cfg.Now().Add(s.cfg.RefreshTTL))

	s.writeJSON(w, status, client.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTTL / time.Second),
		User:         userResponse(u),
	})
}

func (s *Server) message(msg string) client.MessageResponse {
	return client.MessageResponse{Message: msg, Timestamp: s.cfg.Now().UTC()}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string, details ...string) {
	s.writeJSON(w, status, client.ErrorResponse{
		Timestamp: s.cfg.Now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   msg,
		Path:      r.URL.Path,
		Errors:    details,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response", slog.String("error", err.Error()))
	}
}

func userResponse(u user) *client.UserResponse {
	return &client.UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
	}
}

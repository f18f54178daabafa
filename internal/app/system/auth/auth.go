// Package auth reads the actor identity from the signed session cookie that
// the external authentication service issues. docflow never checks
// passwords; it only trusts a cookie signed with the shared session key.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	DefaultSessionName = "docflow-session"

	isAuthKey = "is_authenticated"
	userIDKey = "user_id"
	userName  = "user_name"
	userRole  = "user_role"
	userDept  = "department_id"
)

// ErrEmptySessionKey is returned by NewSessionManager when no key is given.
var ErrEmptySessionKey = errors.New("session key is empty; provide 32+ random chars")

// SessionUser is what we cache in the session and inject into r.Context().
type SessionUser struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	DepartmentID string `json:"department_id,omitempty"`
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// SessionManager owns the cookie store.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger
}

// NewSessionManager builds a cookie store. In production (secure=true)
// cookies are Secure with SameSite=None; in local dev over http, Lax.
func NewSessionManager(key, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if key == "" {
		return nil, ErrEmptySessionKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(key) < 32 {
		logger.Warn("session key is short; 32+ chars recommended", zap.Int("length", len(key)))
	}
	if name == "" {
		name = DefaultSessionName
	}

	store := sessions.NewCookieStore([]byte(key))
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		store.Options.SameSite = http.SameSiteNoneMode
	}

	logger.Info("session store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, log: logger}, nil
}

// DevSessionKey returns a random key for local runs without a configured
// session_key. Cookies signed with it do not survive a restart.
func DevSessionKey() string {
	return string(securecookie.GenerateRandomKey(32))
}

// CurrentUser returns the user and a found flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

// WithTestUser returns r carrying u, as LoadSessionUser would.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

// LoadSessionUser injects the user into context if the cookie is valid.
// A missing or tampered cookie leaves the request anonymous.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.store.Get(r, sm.name)
		if err != nil {
			sm.log.Debug("session cookie rejected", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
			r = withUser(r, &SessionUser{
				ID:           getString(sess, userIDKey),
				Name:         getString(sess, userName),
				Role:         getString(sess, userRole),
				DepartmentID: getString(sess, userDept),
			})
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn answers 401 when LoadSessionUser found no user.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); !ok {
			writeStatus(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole answers 401 without a user and 403 when the user's role is
// not in allowed.
func (sm *SessionManager) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)
			if !ok {
				writeStatus(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if _, has := set[strings.ToLower(u.Role)]; !has {
				sm.log.Info("role denied",
					zap.String("user_id", u.ID),
					zap.String("role", u.Role),
					zap.String("path", r.URL.Path))
				writeStatus(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SignIn writes a session cookie for u. The authentication service does this
// in production; docflow uses it for local runs and tests.
func (sm *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, u SessionUser) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = u.ID
	sess.Values[userName] = u.Name
	sess.Values[userRole] = strings.ToLower(u.Role)
	sess.Values[userDept] = u.DepartmentID
	return sess.Save(r, w)
}

// SignOut expires the session cookie.
func (sm *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

func writeStatus(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

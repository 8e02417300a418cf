package middleware

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
	"github.com/platinummonkey/httpusers/pkg/auth"
	"github.com/platinummonkey/httpusers/pkg/contextkeys"
	"github.com/platinummonkey/httpusers/pkg/httputil"
	"github.com/platinummonkey/httpusers/pkg/permissions"
	"github.com/platinummonkey/httpusers/pkg/users"
)

// Recorder receives authentication and authorization outcomes
type Recorder interface {
	RecordAuthAttempt(result, method string)
	RecordPermissionCheck(permission string, allowed bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthAttempt(string, string)   {}
func (nopRecorder) RecordPermissionCheck(string, bool) {}

// Authenticator provides authentication middleware
type Authenticator struct {
	strategy *auth.Strategy
	dir      auth.Directory
	logger   *logrus.Logger
	recorder Recorder
}

// NewAuthenticator creates a new Authenticator. recorder may be nil.
func NewAuthenticator(strategy *auth.Strategy, dir auth.Directory, logger *logrus.Logger, recorder Recorder) *Authenticator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Authenticator{
		strategy: strategy,
		dir:      dir,
		logger:   logger,
		recorder: recorder,
	}
}

// RequireAuth rejects requests that do not carry valid Basic credentials
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r, err := a.authenticate(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OptionalAuth authenticates when an Authorization header is present and
// otherwise lets the request through anonymously
func (a *Authenticator) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		a.RequireAuth(next).ServeHTTP(w, r)
	})
}

func (a *Authenticator) authenticate(r *http.Request) (*http.Request, error) {
	au, err := a.strategy.Authenticate(r.Context(), r.Header.Get("Authorization"), GetAuthUser(r))

	method := ""
	if au != nil {
		method = au.AuthMethod.Method
	}
	a.recorder.RecordAuthAttempt(auth.Result(err), method)
	auth.LogAttempt(httputil.Logger(r, a.logger), r, au, err)
	if err != nil {
		return r, err
	}

	ctx := contextkeys.WithAuth(r.Context(), au)
	ctx = contextkeys.WithUserID(ctx, au.Username())
	return r.WithContext(ctx), nil
}

// GetAuthUser extracts the authenticated user from the request
func GetAuthUser(r *http.Request) *auth.AuthenticatedUser {
	au, _ := r.Context().Value(contextkeys.AuthKey).(*auth.AuthenticatedUser)
	return au
}

// Can reports whether the caller holds permission name scoped by value
func (a *Authenticator) Can(r *http.Request, name string, value permissions.Value) bool {
	return a.authorize(r, name, value) == nil
}

func (a *Authenticator) authorize(r *http.Request, name string, value permissions.Value) error {
	err := auth.Authorize(a.dir, GetAuthUser(r), name, value)
	a.recorder.RecordPermissionCheck(name, err == nil)
	return err
}

// NeedPermission creates middleware that checks for a boolean permission
func (a *Authenticator) NeedPermission(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := a.authorize(r, name, permissions.NoValue); err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SelfOrPermission lets the request through when the caller is the user
// named by the path variable param, or holds permission name
func (a *Authenticator) SelfOrPermission(param, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			au := GetAuthUser(r)
			if au == nil {
				httputil.WriteError(w, apierrors.Forbidden("You are not logged in"))
				return
			}
			if au.Username() == users.Normalize(mux.Vars(r)[param]) {
				next.ServeHTTP(w, r)
				return
			}
			if err := a.authorize(r, name, permissions.NoValue); err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePasswordAuth rejects callers that authenticated with an API token
func RequirePasswordAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetAuthUser(r).PasswordAuth() {
			httputil.WriteForbidden(w, "Username/password authentication is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PasswordAuthForWrites applies RequirePasswordAuth to every method other
// than GET and HEAD
func PasswordAuthForWrites(next http.Handler) http.Handler {
	guarded := RequirePasswordAuth(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		guarded.ServeHTTP(w, r)
	})
}

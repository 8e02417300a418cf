package auth

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/httpusers/pkg/apierrors"
)

// Authentication outcomes
const (
	ActionAuthSuccess = "auth.success"
	ActionAuthFailure = "auth.failure"
)

// Result labels
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
)

// Result classifies an Authenticate error: nil is success, 403 is denied
// and anything else is failure
func Result(err error) string {
	if err == nil {
		return ResultSuccess
	}
	if apierrors.Is(err, apierrors.CodeForbidden) {
		return ResultDenied
	}
	return ResultFailure
}

// LogAttempt records one authentication attempt. Credentials are never
// logged.
func LogAttempt(logger logrus.FieldLogger, r *http.Request, au *AuthenticatedUser, err error) {
	fields := logrus.Fields{
		"ip":         getClientIP(r),
		"user_agent": r.UserAgent(),
		"result":     Result(err),
	}
	if au != nil {
		fields["username"] = au.Username()
		fields["method"] = au.AuthMethod.Method
		logger.WithFields(fields).Debug(ActionAuthSuccess)
		return
	}
	if username, _, perr := ParseBasic(r.Header.Get("Authorization")); perr == nil {
		fields["username"] = username
	}
	logger.WithFields(fields).WithError(err).Info(ActionAuthFailure)
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (if behind proxy)
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		return forwarded
	}

	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	return r.RemoteAddr
}

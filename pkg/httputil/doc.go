// # Overview
//
// Handlers write responses and errors through one set of helpers so every
// error body has the same shape:
//
//	{"code": "NOT_FOUND", "error": "charlie not found"}
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteError(w, err) // *apierrors.Error keeps its status, others are 500
//	httputil.WriteBadRequest(w, "Invalid key")
//
// # Request Parsing
//
//	var req users.CreateRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// LoggingMiddleware stores a *logrus.Entry carrying the request id in the
// context; handlers fetch it with Logger(r, fallback).
package httputil

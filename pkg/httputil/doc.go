// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, resource)
//
// Classified errors from pkg/apperrors are rendered with WriteAppError, which
// picks the status from the error kind and attaches the business rule code or
// the permission decision reason:
//
//	if err := manager.DeleteModule(ctx, actor, id); err != nil {
//		httputil.WriteAppError(w, err) // 400 {"error": "...", "code": "ModuleInUse"}
//		return
//	}
//
// # Request Parsing
//
//	var req RegisterRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
//	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
//
// # Middleware
//
// RequestIDMiddleware, LoggingMiddleware and RecoveryMiddleware are composed
// with Chain in cmd/tenantgate.
package httputil

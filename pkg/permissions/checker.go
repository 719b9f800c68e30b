// Package permissions checks the permission strings the gateway forwards for
// the authenticated user.
//
// Permission Format:
//   - "*" - Full access (all permissions)
//   - "resource.*" - All actions on a resource (e.g., "attendance.*")
//   - "resource.action" - Specific action (e.g., "attendance.read")
package permissions

import (
	"net/http"
	"strings"

	"github.com/carelog/carelog-backend/pkg/actor"
	"github.com/carelog/carelog-backend/pkg/errors"
	"github.com/carelog/carelog-backend/pkg/httputil"
)

// Attendance permissions
const (
	AttendancePunch     = "attendance.punch"
	AttendanceRead      = "attendance.read"
	AttendanceCorrect   = "attendance.correct"
	AttendanceConfigure = "attendance.configure"
)

// HasPermission checks if the user's permissions include the required permission.
// Supports wildcard matching:
//   - "*" matches everything
//   - "attendance.*" matches "attendance.read", "attendance.punch", etc.
//   - Exact match for specific permissions
func HasPermission(userPerms []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range userPerms {
		if p == "*" || p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}

// Require rejects requests whose actor lacks the permission. It runs after
// the actor middleware.
func Require(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a := actor.FromContext(r.Context())
			if a == nil {
				httputil.ErrorLocalized(w, r, errors.Unauthorized("no authenticated user"))
				return
			}
			if !HasPermission(a.Permissions, required) {
				appErr := errors.Forbidden("missing permission " + required)
				appErr.Details = map[string]string{"required": required}
				httputil.ErrorLocalized(w, r, appErr)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

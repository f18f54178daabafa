// internal/app/system/authz/authz.go
package authz

import (
	"net/http"
	"strings"

	"github.com/dalemusser/docflow/internal/app/system/auth"
	"github.com/dalemusser/docflow/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role groups used by the API routes.
var (
	// AssignRoles may create resolutions and reassign executors.
	AssignRoles = []string{models.UserRoleAdmin, models.UserRoleChancellery, models.UserRoleManager}
	// ScanRoles may trigger the deadline scans by hand.
	ScanRoles = []string{models.UserRoleAdmin, models.UserRoleChancellery}
	// DisciplineRoles may sanction users.
	DisciplineRoles = []string{models.UserRoleAdmin, models.UserRoleManager}
	// ReportRoles may read cross-user statistics.
	ReportRoles = []string{models.UserRoleAdmin, models.UserRoleChancellery, models.UserRoleManager}
	// AuditRoles may read the audit trail.
	AuditRoles = []string{models.UserRoleAdmin, models.UserRoleChancellery}
)

// UserCtx returns the user's role (lowercased), name, ObjectID, and a found
// flag. A missing user or a malformed ID yields "visitor", "", NilObjectID,
// false, so ok=true always means a usable ObjectID.
func UserCtx(r *http.Request) (role string, name string, userID primitive.ObjectID, ok bool) {
	user, ok := auth.CurrentUser(r)
	if !ok {
		return "visitor", "", primitive.NilObjectID, false
	}
	userID, err := primitive.ObjectIDFromHex(user.ID)
	if err != nil {
		// Fail closed on a corrupt session.
		return "visitor", "", primitive.NilObjectID, false
	}
	return strings.ToLower(user.Role), user.Name, userID, true
}

// UserDepartmentID returns the current user's department, or NilObjectID.
func UserDepartmentID(r *http.Request) primitive.ObjectID {
	user, ok := auth.CurrentUser(r)
	if !ok || user.DepartmentID == "" {
		return primitive.NilObjectID
	}
	oid, err := primitive.ObjectIDFromHex(user.DepartmentID)
	if err != nil {
		return primitive.NilObjectID
	}
	return oid
}

// IsAdmin reports whether the current request's user is an admin.
func IsAdmin(r *http.Request) bool { return HasRole(r, models.UserRoleAdmin) }

// IsChancellery reports whether the current user works in the chancellery.
func IsChancellery(r *http.Request) bool { return HasRole(r, models.UserRoleChancellery) }

// IsManager reports whether the current user is a department manager.
func IsManager(r *http.Request) bool { return HasRole(r, models.UserRoleManager) }

// IsExecutor reports whether the current user is a plain executor.
func IsExecutor(r *http.Request) bool { return HasRole(r, models.UserRoleExecutor) }

// CanAssign reports whether the current user may write resolutions.
func CanAssign(r *http.Request) bool { return HasAnyRole(r, AssignRoles...) }

// CanDiscipline reports whether the current user may sanction others.
func CanDiscipline(r *http.Request) bool { return HasAnyRole(r, DisciplineRoles...) }

// CanResetRecord reports whether the current user may wipe a disciplinary
// record. Only admins can.
func CanResetRecord(r *http.Request) bool { return IsAdmin(r) }

// CanViewUser reports whether the current user may read another user's
// disciplinary history: themselves, or anyone for report roles.
func CanViewUser(r *http.Request, target primitive.ObjectID) bool {
	_, _, me, ok := UserCtx(r)
	if !ok {
		return false
	}
	return me == target || HasAnyRole(r, ReportRoles...)
}

// CanViewDocument reports whether the current user may read a document's
// stage history: its author, anyone in an executor role on it, or report
// roles.
func CanViewDocument(r *http.Request, doc models.Document) bool {
	_, _, me, ok := UserCtx(r)
	if !ok {
		return false
	}
	if HasAnyRole(r, ReportRoles...) || doc.HasExecutor(me) {
		return true
	}
	return doc.AuthorID != nil && *doc.AuthorID == me
}

// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User roles.
const (
	UserRoleAdmin       = "admin"
	UserRoleChancellery = "chancellery"
	UserRoleManager     = "manager"
	UserRoleExecutor    = "executor"
)

// UserRoles lists every role a user may hold.
var UserRoles = []string{UserRoleAdmin, UserRoleChancellery, UserRoleManager, UserRoleExecutor}

// User statuses.
const (
	UserActive   = "active"
	UserDisabled = "disabled"
)

// User is a person who can be assigned documents and sanctioned.
//
// NOTE:
//   - Users are owned by the external directory service; this service only
//     reads them (manager lookups, names for messages).
type User struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	FullName     string              `bson:"full_name" json:"full_name"`
	Email        string              `bson:"email" json:"email"`
	Role         string              `bson:"role" json:"role"` // admin | chancellery | manager | executor
	Status       string              `bson:"status,omitempty" json:"status,omitempty"`
	DepartmentID *primitive.ObjectID `bson:"department_id,omitempty" json:"department_id,omitempty"`
	ManagerID    *primitive.ObjectID `bson:"manager_id,omitempty" json:"manager_id,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

package model

import (
	"github.com/Dis3z/reserve-api/shared/model"
)

const (
	TableName  = "users"
	EntityName = "user"

	FieldID       = "id"
	FieldRole     = "role"
	FieldIsActive = "is_active"
)

// User is consumed identity, not owned: registration and profiles live
// elsewhere. The core only reads activity and role.
type User struct {
	ID       string `db:"id"`
	Role     string `db:"role"`
	IsActive bool   `db:"is_active"`
	model.Timestamps
}

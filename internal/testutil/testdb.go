// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"crimesleuth/internal/db"
	"crimesleuth/internal/model"
)

// NewDB opens a private in-memory SQLite database with the schema migrated.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	gdb, err := db.Open("sqlite", dsn, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

// CreateUser inserts a user with the given role.
func CreateUser(t testing.TB, gdb *gorm.DB, name string, role model.Role) *model.User {
	t.Helper()

	u := &model.User{
		Name:         name,
		Email:        fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		PasswordHash: "x",
		Role:         role,
	}
	require.NoError(t, gdb.WithContext(context.Background()).Create(u).Error)
	return u
}

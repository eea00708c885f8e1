package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// RoleDAO reads role assignments.
type RoleDAO struct {
	conn IDBConn
}

func NewRoleDAO(conn IDBConn) *RoleDAO { return &RoleDAO{conn: conn} }

func (d *RoleDAO) Roles(ctx context.Context, userID int) ([]string, error) {
	return d.conn.Roles(ctx, userID)
}

// UserView is what UsersHandler renders.
type UserView struct {
	ID     int      `json:"id"`
	Admin  bool     `json:"admin"`
	Roles  []string `json:"roles"`
	Driver string   `json:"driver"`
}

// UserManager answers questions about users. The super user id comes from
// the "@adminId" variable of the resolving scope.
type UserManager struct {
	conn    IDBConn
	adminID int
	roles   *RoleDAO
	log     *zap.Logger
}

func NewUserManager(conn IDBConn, adminID int, roles *RoleDAO, log *zap.Logger) *UserManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserManager{conn: conn, adminID: adminID, roles: roles, log: log}
}

func (m *UserManager) AdminID() int { return m.adminID }

// ErrNoSuchUser is returned by Describe for users without any role.
var ErrNoSuchUser = errors.New("no such user")

// Describe loads a user's roles.
func (m *UserManager) Describe(ctx context.Context, userID int) (*UserView, error) {
	roles, err := m.roles.Roles(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNoSuchUser)
	}
	v := &UserView{
		ID:     userID,
		Admin:  userID == m.adminID || slices.Contains(roles, "admin"),
		Roles:  roles,
		Driver: m.conn.Driver(),
	}
	m.log.Debug("user described", zap.Int("user", userID), zap.Bool("admin", v.Admin))
	return v, nil
}

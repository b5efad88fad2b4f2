package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Users authenticates against the users table. The configured admin account
// is checked first and needs no row.
type Users struct {
	db            *sql.DB
	adminUser     string
	adminPassHash string
}

func NewUsers(db *sql.DB, adminUser, adminPassHash string) *Users {
	return &Users{db: db, adminUser: adminUser, adminPassHash: adminPassHash}
}

func (u *Users) Authenticate(ctx context.Context, username, password string) (User, error) {
	if username == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}
	if u.adminUser != "" && username == u.adminUser {
		if bcrypt.CompareHashAndPassword([]byte(u.adminPassHash), []byte(password)) != nil {
			return User{}, ErrInvalidCredentials
		}
		return User{ID: username, Username: username, Role: "admin"}, nil
	}

	var usr User
	var hash string
	err := u.db.QueryRowContext(ctx,
		`SELECT id, username, role, password_hash FROM users WHERE username=$1`, username,
	).Scan(&usr.ID, &usr.Username, &usr.Role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup user %s: %w", username, err)
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return usr, nil
}

// Upsert creates or updates a user, hashing password with bcrypt. An empty
// password keeps the stored hash.
func (u *Users) Upsert(ctx context.Context, usr User, password string) error {
	hash := ""
	if password != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		hash = string(b)
	}
	_, err := u.db.ExecContext(ctx, `INSERT INTO users (id, username, role, password_hash)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET username=EXCLUDED.username, role=EXCLUDED.role,
		  password_hash=CASE WHEN EXCLUDED.password_hash='' THEN users.password_hash ELSE EXCLUDED.password_hash END`,
		usr.ID, usr.Username, usr.Role, hash)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", usr.ID, err)
	}
	return nil
}

// ChangePassword replaces the user's password after checking the old one.
func (u *Users) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	var stored string
	err := u.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id=$1`, id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("lookup user %s: %w", id, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := u.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, string(hash), id); err != nil {
		return fmt.Errorf("update password %s: %w", id, err)
	}
	return nil
}

// List returns users ordered by username, optionally filtered by role.
func (u *Users) List(ctx context.Context, role string) ([]User, error) {
	q := `SELECT id, username, role FROM users ORDER BY username`
	args := []any{}
	if role != "" {
		q = `SELECT id, username, role FROM users WHERE role=$1 ORDER BY username`
		args = append(args, role)
	}
	rows, err := u.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		var usr User
		if err := rows.Scan(&usr.ID, &usr.Username, &usr.Role); err != nil {
			return nil, err
		}
		out = append(out, usr)
	}
	return out, rows.Err()
}

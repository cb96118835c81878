package database

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"

	"github.com/thehanda/countcam-app/pkg/models"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
)

// argon2Params holds the parameters for the Argon2id hashing algorithm.
type argon2Params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

var params = &argon2Params{
	memory:      64 * 1024,
	iterations:  3,
	parallelism: 4,
	saltLength:  16,
	keyLength:   32,
}

// HashPassword generates an Argon2id hash of the password.
// The format is: $argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, params.saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, params.iterations, params.memory, params.parallelism, params.keyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.memory, params.iterations, params.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword compares a password with an Argon2id hash.
func VerifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errors.New("invalid hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, errors.New("incompatible argon2 version")
	}

	p := &argon2Params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.iterations, &p.parallelism); err != nil {
		return false, fmt.Errorf("failed to parse argon2 params: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("failed to decode salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("failed to decode hash: %w", err)
	}

	got := argon2.IDKey([]byte(password), salt, p.iterations, p.memory, p.parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// UserExists checks if a user exists in the database.
func (d *DB) UserExists(username string) (bool, error) {
	var count int
	if err := d.sql.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateUser creates a new user in the database.
func (d *DB) CreateUser(username, password string, isAdmin bool) error {
	exists, err := d.UserExists(username)
	if err != nil {
		return fmt.Errorf("failed to check if user exists: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrUserExists, username)
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if _, err := d.sql.Exec("INSERT INTO users (username, password_hash, is_admin) VALUES (?, ?, ?)", username, passwordHash, isAdmin); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	d.log.Info("user created", zap.String("username", username), zap.Bool("admin", isAdmin))
	return nil
}

// EnsureAdmin creates the initial "admin" account when it is missing.
func (d *DB) EnsureAdmin(password string) error {
	exists, err := d.UserExists("admin")
	if err != nil {
		return fmt.Errorf("failed to check if admin user exists: %w", err)
	}
	if exists {
		return nil
	}
	if password == "" {
		return errors.New("ADMIN_PASSWORD must be set to create the initial admin user")
	}
	return d.CreateUser("admin", password, true)
}

// CheckUserCredentials verifies a user's credentials and returns the user on success.
func (d *DB) CheckUserCredentials(username, password string) (*models.User, bool) {
	var (
		user         models.User
		isAdminInt   int
		passwordHash string
	)
	err := d.sql.QueryRow("SELECT id, username, is_admin, password_hash FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username, &isAdminInt, &passwordHash)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			d.log.Error("failed to load user", zap.String("username", username), zap.Error(err))
		}
		return nil, false
	}

	ok, err := VerifyPassword(password, passwordHash)
	if err != nil {
		d.log.Warn("stored password hash is unusable", zap.String("username", username), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	user.IsAdmin = isAdminInt == 1
	return &user, true
}

// GetUserByUsername returns nil without an error when the user does not exist.
func (d *DB) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	var isAdminInt int
	err := d.sql.QueryRow("SELECT id, username, is_admin FROM users WHERE username = ?", username).Scan(&user.ID, &user.Username, &isAdminInt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	user.IsAdmin = isAdminInt == 1
	return &user, nil
}

// GetAllUsers retrieves all users ordered by username.
func (d *DB) GetAllUsers() ([]models.User, error) {
	rows, err := d.sql.Query("SELECT id, username, is_admin FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		var isAdminInt int
		if err := rows.Scan(&user.ID, &user.Username, &isAdminInt); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		user.IsAdmin = isAdminInt == 1
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during user rows iteration: %w", err)
	}
	return users, nil
}

func (d *DB) DeleteUser(username string) error {
	result, err := d.sql.Exec("DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := requireRow(result, username); err != nil {
		return err
	}
	d.log.Info("user deleted", zap.String("username", username))
	return nil
}

func (d *DB) UpdateUserPassword(username, newPassword string) error {
	passwordHash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}

	result, err := d.sql.Exec("UPDATE users SET password_hash = ? WHERE username = ?", passwordHash, username)
	if err != nil {
		return fmt.Errorf("failed to update password for user '%s': %w", username, err)
	}
	if err := requireRow(result, username); err != nil {
		return err
	}
	d.log.Info("password updated", zap.String("username", username))
	return nil
}

func requireRow(result sql.Result, username string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return nil
}

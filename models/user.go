package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User 本地密码・Passkey・外部IdP（Google/LINE）を一つのアカウントに束ねる。
// Handle は WebAuthn の userHandle（UUID 文字列、用時 []byte に変換）
type User struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	UserID      string `gorm:"uniqueIndex;size:255;not null" json:"username"`
	Email       string `gorm:"size:255" json:"email"`
	DisplayName string `gorm:"size:255" json:"display_name"`

	// 空ならローカルパスワード無し（ソーシャル専用アカウント）
	PasswordHash string `gorm:"size:255" json:"-"`

	GoogleUserID string `gorm:"size:255" json:"-"`
	LineUserID   string `gorm:"size:255" json:"-"`

	Handle  string `gorm:"size:36;not null" json:"-"`
	IsAdmin bool   `gorm:"not null;default:false" json:"is_admin"`

	LastLoginAt *time.Time `gorm:"index" json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Passkeys []Passkey `json:"-"`
}

func (User) TableName() string {
	return "users"
}

// RootUserID は保護された最上位管理者。削除・権限変更の対象外。
const RootUserID = "root"

func (u *User) IsRoot() bool { return u.UserID == RootUserID }

// SetPassword はソルト付き適応ハッシュを保存する。平文は保持しない。
func (u *User) SetPassword(plaintext string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword はハッシュ側の定数時間比較で照合する。
// ハッシュ未設定（ソーシャル専用）のユーザーは常に false。
func (u *User) CheckPassword(plaintext string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plaintext)) == nil
}

// Passkey は登録済みパスキー 1 本分の記録。
// CredentialID / PublicKey はバイナリで、Postgres では bytea になる
type Passkey struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"index;not null" json:"user_id"`
	CredentialID    []byte    `gorm:"uniqueIndex" json:"credential_id"`
	PublicKey       []byte    `json:"-"`
	AttestationType string    `gorm:"size:64" json:"attestation_type"`
	AAGUID          []byte    `json:"-"`
	SignCount       uint32    `json:"sign_count"`
	TransportsJSON  string    `gorm:"type:text" json:"-"`
	BackupEligible  bool      `json:"backup_eligible"`
	BackupState     bool      `json:"backup_state"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	LastUsedAt *time.Time `gorm:"index" json:"last_used_at,omitempty"`
}

func (Passkey) TableName() string {
	return "passkeys"
}

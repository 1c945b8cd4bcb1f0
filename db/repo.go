package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"nagano_festival_backend/models"

	"gorm.io/gorm"
)

type Repo struct{ DB *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

// ErrNotFound re-exports the gorm sentinel, so that callers do not need to
// import gorm to classify lookup misses.
var ErrNotFound = gorm.ErrRecordNotFound

// IsDuplicate 判断是否违反唯一约束（Postgres 23505 / SQLite UNIQUE）。
// 并发注册最终由存储层的唯一索引裁决，这里把它映射成冲突而不是崩溃。
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		errors.Is(err, gorm.ErrDuplicatedKey)
}

// Users

func (r *Repo) CreateUser(ctx context.Context, u *models.User) error {
	return r.DB.WithContext(ctx).Create(u).Error
}

func (r *Repo) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) FindUserByUserID(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, ErrNotFound
	}
	var u models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByIdentifier はログインIDとして userID・メールのどちらも受ける
func (r *Repo) FindUserByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	u, err := r.FindUserByUserID(ctx, identifier)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return r.FindUserByEmail(ctx, identifier)
}

func (r *Repo) FindUserByGoogleID(ctx context.Context, subjectID string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("google_user_id = ?", subjectID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) FindUserByLineID(ctx context.Context, subjectID string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("line_user_id = ?", subjectID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) TouchUserLogin(ctx context.Context, userID uint) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_login_at", time.Now()).Error
}

// SaveUser 持久化 linking 回填后的字段（provider id、display name、email）
func (r *Repo) SaveUser(ctx context.Context, u *models.User) error {
	return r.DB.WithContext(ctx).Save(u).Error
}

func (r *Repo) SetPasswordHash(ctx context.Context, userID uint, hash string) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("password_hash", hash).Error
}

// DeleteUser 删除用户并级联删 passkey。root 受保护，不可删除。
func (r *Repo) DeleteUser(ctx context.Context, id uint) error {
	u, err := r.FindUserByID(ctx, id)
	if err != nil {
		return err
	}
	if u.IsRoot() {
		return errors.New("root user is protected")
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.Passkey{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, id).Error
	})
}

// SetAdmin 变更管理员标记。root 的角色不可变更。
func (r *Repo) SetAdmin(ctx context.Context, id uint, isAdmin bool) error {
	u, err := r.FindUserByID(ctx, id)
	if err != nil {
		return err
	}
	if u.IsRoot() {
		return errors.New("root user is protected")
	}
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("is_admin", isAdmin).Error
}

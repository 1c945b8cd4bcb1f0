package db

import (
	"context"
	"time"

	"nagano_festival_backend/models"

	"gorm.io/gorm"
)

// Passkeys

func (r *Repo) AddPasskey(ctx context.Context, p *models.Passkey) error {
	return r.DB.WithContext(ctx).Create(p).Error
}

// RegisterPasskey は登録検証の確定書き込み。初回登録ならユーザー作成と
// passkey 追加を同一トランザクションで行い、部分成功を残さない。
func (r *Repo) RegisterPasskey(ctx context.Context, newUser *models.User, p *models.Passkey) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if newUser != nil {
			if err := tx.Create(newUser).Error; err != nil {
				return err
			}
			p.UserID = newUser.ID
		}
		return tx.Create(p).Error
	})
}

func (r *Repo) ListPasskeys(ctx context.Context, userID uint) ([]models.Passkey, error) {
	var ps []models.Passkey
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&ps).Error; err != nil {
		return nil, err
	}
	return ps, nil
}

func (r *Repo) CountPasskeys(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Passkey{}).
		Where("user_id = ?", userID).
		Count(&n).Error
	return n, err
}

func (r *Repo) FindPasskeyByCredentialID(ctx context.Context, credID []byte) (*models.Passkey, error) {
	var p models.Passkey
	if err := r.DB.WithContext(ctx).Where("credential_id = ?", credID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// AdvanceSignCount は報告カウンタへ単一の条件付き UPDATE で進める。
// 前回値が非ゼロで増加していなければ 0 行更新 → クローン検出として失敗。
// 同一クレデンシャルの並行認証もこの一文が裁定する。
func (r *Repo) AdvanceSignCount(ctx context.Context, credID []byte, reported uint32) (bool, error) {
	now := time.Now()
	res := r.DB.WithContext(ctx).Model(&models.Passkey{}).
		Where("credential_id = ? AND (sign_count = 0 OR sign_count < ?)", credID, reported).
		Updates(map[string]any{"sign_count": reported, "last_used_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DeletePasskey は所有者スコープで削除する
func (r *Repo) DeletePasskey(ctx context.Context, userID, passkeyID uint) error {
	res := r.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", passkeyID, userID).
		Delete(&models.Passkey{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

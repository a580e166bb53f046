package models

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/shop_backend/config"
)

// PushToken maps one device token to its current owner. The token value is
// the key: a device that logs into a different account hands its token over,
// so re-registration overwrites user, platform and app.
type PushToken struct {
	ID         int       `gorm:"primary_key" json:"id"`
	Token      string    `gorm:"size:255;uniqueIndex;not null" json:"token"`
	UserId     int       `gorm:"index;not null" json:"user_id"`
	Platform   string    `gorm:"size:20" json:"platform"`
	App        string    `gorm:"size:40;index" json:"app"`
	LastSeenAt time.Time `gorm:"not null" json:"last_seen_at"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RegisterPushToken upserts by token value. Safe to call on every app start.
func RegisterPushToken(ctx context.Context, userId int, token string, platform string, app string) error {
	if app == "" {
		app = PushAppCustomerMobile
	}
	db := config.GetDB()
	row := PushToken{
		Token:      token,
		UserId:     userId,
		Platform:   platform,
		App:        app,
		LastSeenAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "app", "last_seen_at"}),
	}).Create(&row).Error
}

// UnregisterPushToken deletes the row only when userId still owns it; a token
// that was re-registered by another account is left alone.
func UnregisterPushToken(ctx context.Context, userId int, token string) error {
	db := config.GetDB()
	return db.WithContext(ctx).
		Where("token = ? AND user_id = ?", token, userId).
		Delete(&PushToken{}).Error
}

// RemovePushToken force-deletes a token regardless of owner. The push
// dispatcher uses it when the gateway reports the device as gone.
func RemovePushToken(ctx context.Context, token string) error {
	db := config.GetDB()
	return db.WithContext(ctx).Where("token = ?", token).Delete(&PushToken{}).Error
}

// TokensFor returns the user's registered tokens for one app.
func TokensFor(ctx context.Context, userId int, app string) ([]string, error) {
	db := config.GetDB()
	var tokens []string
	err := db.WithContext(ctx).Model(&PushToken{}).
		Where("user_id = ? AND app = ?", userId, app).
		Order("last_seen_at DESC").
		Pluck("token", &tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

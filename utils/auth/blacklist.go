package auth

import (
	"context"
	"time"

	"github.com/sahilchouksey/studyquiz-api/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlacklistService revokes individual tokens by jti and whole sessions by
// bumping the user's token version
type BlacklistService struct {
	db *gorm.DB
}

func NewBlacklistService(db *gorm.DB) *BlacklistService {
	return &BlacklistService{db: db}
}

// RevokeToken records jti as revoked until expiresAt. Revoking the same jti
// twice is a no-op.
func (s *BlacklistService) RevokeToken(ctx context.Context, jti string, userID uint, expiresAt time.Time, reason string) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "token"}}, DoNothing: true}).
		Create(&model.JWTTokenBlacklist{
			Token:     jti,
			UserID:    userID,
			Reason:    reason,
			ExpiresAt: expiresAt,
		}).Error
}

func (s *BlacklistService) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.JWTTokenBlacklist{}).
		Where("token = ? AND expires_at > ?", jti, time.Now()).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// RevokeAllUserTokens invalidates every token issued to the user so far
func (s *BlacklistService) RevokeAllUserTokens(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("token_version", gorm.Expr("token_version + 1")).Error
}

// CleanupExpiredTokens hard-deletes entries whose token would already be
// rejected for expiry
func (s *BlacklistService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Unscoped().
		Where("expires_at < ?", time.Now()).
		Delete(&model.JWTTokenBlacklist{})
	return res.RowsAffected, res.Error
}

package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/520Girl/socket-chat/internal/models"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	return &user, err
}

func (r *UserRepository) SetPresence(userID uint, online bool, sessionID string, lastActive time.Time) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_online":   online,
			"session_id":  sessionID,
			"last_active": lastActive,
		}).Error
}

func (r *UserRepository) TouchLastActive(userID uint, lastActive time.Time) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).
		Update("last_active", lastActive).Error
}

func (r *UserRepository) ListOnline() ([]models.User, error) {
	var users []models.User
	err := r.db.Where("is_online = ?", true).
		Order("last_active DESC").
		Find(&users).Error
	return users, err
}

package repository

import (
	"gorm.io/gorm"

	"github.com/520Girl/socket-chat/internal/models"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(message *models.Message) error {
	return r.db.Create(message).Error
}

func (r *MessageRepository) FindByID(id uint) (*models.Message, error) {
	var message models.Message
	err := r.db.Preload("Sender").First(&message, id).Error
	return &message, err
}

func (r *MessageRepository) conversationQuery(filter ConversationFilter) *gorm.DB {
	if filter.IsGroup() {
		return r.db.Model(&models.Message{}).Where("group_id = ?", filter.GroupID)
	}
	return r.db.Model(&models.Message{}).Where(
		"(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
		filter.ViewerID, filter.CounterpartID, filter.CounterpartID, filter.ViewerID,
	)
}

func (r *MessageRepository) FindConversationPage(filter ConversationFilter, offset, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := r.conversationQuery(filter).
		Preload("Sender").
		Order("sent_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *MessageRepository) CountConversation(filter ConversationFilter) (int64, error) {
	var count int64
	err := r.conversationQuery(filter).Count(&count).Error
	return count, err
}

func (r *MessageRepository) MarkConversationRead(recipientID, counterpartID uint) (int64, error) {
	res := r.db.Model(&models.Message{}).
		Where("sender_id = ? AND recipient_id = ? AND is_read = ?", counterpartID, recipientID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *MessageRepository) SaveTombstone(message *models.Message) error {
	return r.db.Model(message).Select("IsDeleted", "DeletedAt", "DeletedBy").Updates(map[string]interface{}{
		"is_deleted": message.IsDeleted,
		"deleted_at": message.DeletedAt,
		"deleted_by": message.DeletedBy,
	}).Error
}

package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/classroom-rtc/internal/models"
	"gorm.io/gorm"
)

func (d *Database) SaveMessage(ctx context.Context, message *models.Message) error {
	return d.db.WithContext(ctx).Create(message).Error
}

func (d *Database) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var message models.Message
	if err := d.db.WithContext(ctx).First(&message, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "message")
	}
	return &message, nil
}

// ConversationMessages returns up to limit messages exchanged between a and
// b, oldest first. With beforeID set, only messages that sort before it
// by (created_at, id).
func (d *Database) ConversationMessages(ctx context.Context, a, b uuid.UUID, limit int, beforeID *uuid.UUID) ([]models.Message, error) {
	db := d.db.WithContext(ctx)
	var messages []models.Message

	query := db.Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a)

	if beforeID != nil {
		var before models.Message
		if err := db.First(&before, "id = ?", *beforeID).Error; err != nil {
			return nil, notFound(err, "message")
		}
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", before.CreatedAt, before.CreatedAt, before.ID)
	}

	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (d *Database) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := d.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND delivered = ?", id, false).
		Updates(map[string]any{"delivered": true, "delivered_at": at})
	return res.RowsAffected > 0, res.Error
}

// MarkConversationDelivered marks every undelivered message from -> to.
func (d *Database) MarkConversationDelivered(ctx context.Context, from, to uuid.UUID, at time.Time) (int64, error) {
	res := d.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND delivered = ?", from, to, false).
		Updates(map[string]any{"delivered": true, "delivered_at": at})
	return res.RowsAffected, res.Error
}

// seenUpdate sets seen and, in the same statement, delivered. A message
// delivered earlier keeps its original delivered_at.
func seenUpdate(at time.Time) map[string]any {
	return map[string]any{
		"seen":         true,
		"seen_at":      at,
		"delivered":    true,
		"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", at),
	}
}

func (d *Database) MarkSeen(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := d.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND seen = ?", id, false).
		Updates(seenUpdate(at))
	return res.RowsAffected > 0, res.Error
}

// MarkAllSeen marks every unseen message from -> to.
func (d *Database) MarkAllSeen(ctx context.Context, from, to uuid.UUID, at time.Time) (int64, error) {
	res := d.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("sender_id = ? AND receiver_id = ? AND seen = ?", from, to, false).
		Updates(seenUpdate(at))
	return res.RowsAffected, res.Error
}

// UnreadCounts returns the number of unseen messages per sender.
func (d *Database) UnreadCounts(ctx context.Context, receiver uuid.UUID) (map[uuid.UUID]int64, error) {
	var rows []struct {
		SenderID uuid.UUID
		Count    int64
	}
	err := d.db.WithContext(ctx).
		Model(&models.Message{}).
		Select("sender_id, COUNT(*) AS count").
		Where("receiver_id = ? AND seen = ?", receiver, false).
		Group("sender_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uuid.UUID]int64, len(rows))
	for _, r := range rows {
		counts[r.SenderID] = r.Count
	}
	return counts, nil
}

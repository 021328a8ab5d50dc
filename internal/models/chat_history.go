package models

import "time"

// MessageTypeText is the only message type clients can post today.
const MessageTypeText = "text"

// Message is a chat line persisted in a room. Sender display fields are
// denormalized so history reads need no join.
//
// Messages are ordered by (CreatedAt, ID); ID breaks timestamp ties in insertion order.
type Message struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	RoomID      string       `gorm:"size:16;not null;index:idx_room_msg,priority:1" json:"room_id"`
	UserID      string       `gorm:"size:64;not null" json:"user_id"`
	UserKind    IdentityKind `gorm:"size:16;not null" json:"user_kind"`
	DisplayName string       `gorm:"size:100;not null" json:"display_name"`
	AvatarColor string       `gorm:"size:16" json:"avatar_color,omitempty"`
	Content     string       `gorm:"type:text;not null" json:"content"`
	MessageType string       `gorm:"size:16;not null;default:text" json:"message_type"`
	CreatedAt   time.Time    `gorm:"not null;index:idx_room_msg,priority:2" json:"created_at"`
}

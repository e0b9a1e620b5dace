package types

import "time"

// Message is a single chat message of the unified chat channel. Once stored
// it is immutable: the id and the timestamp are assigned by the persister,
// there is no update or delete path.
type Message struct {
	Id          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Content     string    `json:"content"`
	SenderEmail string    `json:"senderEmail"`
	SenderRole  string    `json:"senderRole"`
	SentAt      time.Time `json:"sentAt" gorm:"index"`
}

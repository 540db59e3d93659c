// Package domain contains the persistence model and contracts for the
// simulated message queue: a single append-only table standing in for a
// topic/partition broker.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Message is one queue row. Rows are append-only; only Consumed/ConsumedAt
// (and the claim marker) are ever updated, exactly once logically.
type Message struct {
	ID         int64          `gorm:"primaryKey"`
	Topic      string         `gorm:"type:varchar(100);not null;index"`
	Key        string         `gorm:"column:message_key;type:varchar(255)"`
	Value      datatypes.JSON `gorm:"not null"`
	Consumed   bool           `gorm:"not null;default:false;index"`
	ConsumedAt *time.Time     `gorm:""`
	ClaimedBy  *string        `gorm:"type:varchar(64)"`
	ClaimedAt  *time.Time     `gorm:""`
	CreatedAt  time.Time      `gorm:"not null;index"`
}

// TableName sets the database table name.
func (Message) TableName() string { return "queue_messages" }

// Topic names.
const (
	TopicPaymentRequests  = "payment-requests"
	TopicPaymentEvents    = "payment-events"
	TopicPaymentSuccess   = "payment-success"
	TopicPaymentFailed    = "payment-failed"
	TopicPaymentRetry     = "payment-retry"
	TopicFraudDetection   = "fraud-detection"
	TopicNotifications    = "notifications"
	TopicTransactions     = "transactions"
	TopicSendEmail        = "send-email"
	TopicSendNotification = "send-notification"
)

// AllTopics lists every known topic, in dispatch order.
var AllTopics = []string{
	TopicPaymentRequests,
	TopicPaymentEvents,
	TopicPaymentSuccess,
	TopicPaymentFailed,
	TopicPaymentRetry,
	TopicFraudDetection,
	TopicNotifications,
	TopicTransactions,
	TopicSendEmail,
	TopicSendNotification,
}

const (
	defaultPartitions    = 6
	highVolumePartitions = 20
)

var highVolumeTopics = map[string]bool{
	TopicPaymentRequests:  true,
	TopicSendEmail:        true,
	TopicSendNotification: true,
}

// NumPartitions returns the simulated partition count for a topic.
func NumPartitions(topic string) int {
	if highVolumeTopics[topic] {
		return highVolumePartitions
	}
	return defaultPartitions
}

// PartitionOf assigns a message to a partition. Partitioning is simulated,
// not stored: real brokers hash the key, here we take id mod partitions.
func PartitionOf(topic string, id int64) int {
	return int(id % int64(NumPartitions(topic)))
}

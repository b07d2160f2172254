package models

import "time"

// NotificationChannelType identifies the delivery transport for a channel.
type NotificationChannelType string

const (
	ChannelInApp   NotificationChannelType = "in_app"  // pushed to connected UI clients
	ChannelSystem  NotificationChannelType = "system"  // written to the process log
	ChannelWebhook NotificationChannelType = "webhook" // JSON POST to URL
	ChannelSlack   NotificationChannelType = "slack"   // Slack-format POST to URL
)

// NotificationChannel is a configured delivery target. Channels are identified
// by ID; reconfiguring an existing ID replaces the channel in place.
type NotificationChannel struct {
	ID      string                  `json:"id"`
	Name    string                  `json:"name,omitempty"`
	Type    NotificationChannelType `json:"type"`
	URL     string                  `json:"url,omitempty"` // webhook/slack only
	Enabled bool                    `json:"enabled"`
}

// Notification is an ephemeral message dispatched to every enabled channel.
type Notification struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	Timestamp  time.Time `json:"timestamp"`
	Read       bool      `json:"read"`
	Link       string    `json:"link,omitempty"`
	ClusterID  string    `json:"cluster_id,omitempty"`
	ResourceID string    `json:"resource_id,omitempty"`
}

package domain

import "time"

type AuditLog struct {
	EventTime     time.Time              `json:"event_time"`
	ActorIdentity string                 `json:"actor_identity"`
	ActorRole     Role                   `json:"actor_role"`
	EventType     string                 `json:"event_type"`
	Payload       map[string]interface{} `json:"payload"`
}

const (
	EventTypeConversationsExported = "CONVERSATIONS_EXPORTED"
	EventTypeConversationsDeleted  = "CONVERSATIONS_DELETED"
	EventTypeArtifactDeleted       = "EXPORT_ARTIFACT_DELETED"
)

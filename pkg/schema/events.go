// pkg/schema/events.go
package schema

type EventType string

const (
	EventArtifactCreated EventType = "artifact.created"
	EventArtifactDerived EventType = "artifact.derived"
	EventArtifactDeleted EventType = "artifact.deleted"
	EventKeyRevoked      EventType = "key.revoked"
)

// Event is the envelope published on the event subject.
type Event struct {
	Type       EventType      `json:"type"`
	Artifact   *ArtifactEvent `json:"artifact,omitempty"`
	Key        *KeyEvent      `json:"key,omitempty"`
	HappenedAt int64          `json:"happened_at"`
}

type ArtifactEvent struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	OwnerID  string `json:"owner_id,omitempty"`
	HomeNode string `json:"home_node"`
	Format   string `json:"format"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type KeyEvent struct {
	UUID       string   `json:"uuid"`
	Cascade    bool     `json:"cascade"`
	RemovedIDs []string `json:"removed_ids,omitempty"`
}

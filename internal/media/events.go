package media

import (
	"context"
	"encoding/json"

	"github.com/tendant/simple-media/pkg/schema"
)

// HandleEvent applies a lifecycle event published by any node to the local
// variant cache: variants of deleted artifacts are dropped.
func (s *Service) HandleEvent(ctx context.Context, data []byte) {
	var ev schema.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Warn("ignoring malformed event", "error", err)
		return
	}

	var ids []string
	switch ev.Type {
	case schema.EventArtifactDeleted:
		if ev.Artifact != nil {
			ids = append(ids, ev.Artifact.ID)
		}
	case schema.EventKeyRevoked:
		if ev.Key != nil {
			ids = ev.Key.RemovedIDs
		}
	}
	for _, id := range ids {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.logger.Warn("failed to invalidate variants", "artifact_id", id, "error", err)
		}
	}
}

package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
)

// Identity is the persistent identity of this bot installation.
type Identity struct {
	BotID     string    `json:"botId"`
	CreatedAt time.Time `json:"createdAt"`
}

// LoadOrCreateIdentity reads the identity file, creating a fresh one when the
// file is missing or unreadable.
func LoadOrCreateIdentity(path string) (*Identity, error) {
	if data, err := os.ReadFile(path); err == nil {
		var id Identity
		if err := json.Unmarshal(data, &id); err == nil && id.BotID != "" {
			return &id, nil
		}
	}

	id := &Identity{
		BotID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, err
	}

	return id, nil
}

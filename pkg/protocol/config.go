package protocol

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// DecodeConfig copies a generic node configuration into a typed struct using its json tags.
func DecodeConfig(config map[string]any, out any) error {
	if config == nil {
		config = map[string]any{}
	}

	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode node config: %w", err)
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("failed to decode node config: %w", err)
	}

	return nil
}

// Passthrough returns a copy of input without the blocks entry.
func Passthrough(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		if key == BlocksKey {
			continue
		}

		out[key] = value
	}

	return out
}

// BlocksKey is the input key holding the outputs of every upstream node.
const BlocksKey = "blocks"

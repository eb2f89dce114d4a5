package common

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
)

// SelectAPIKey resolves the raw credential input into one key.
//
// raw is either a single key or a JSON array of keys; for an array one
// non-blank entry is picked uniformly at random with rnd (nil means the
// global source). index is the position in the original array, or -1 for a
// single key. Selection happens once at startup, never inside the pipeline.
func SelectAPIKey(raw string, rnd *rand.Rand) (key string, index int, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", -1, NewAppError("CONFIG_ERROR", "GOOGLE_API_KEY is required", ErrInvalidInput)
	}
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return trimmed, -1, nil
	}

	var keys []string
	if err := json.Unmarshal([]byte(trimmed), &keys); err != nil {
		// not a JSON array after all; treat the whole value as one key
		return trimmed, -1, nil
	}

	var valid []int
	for i, k := range keys {
		if strings.TrimSpace(k) != "" {
			valid = append(valid, i)
		}
	}
	if len(valid) == 0 {
		return "", -1, NewAppError("CONFIG_ERROR", "no valid API keys found in array", ErrInvalidInput)
	}

	var pick int
	if rnd != nil {
		pick = valid[rnd.IntN(len(valid))]
	} else {
		pick = valid[rand.IntN(len(valid))]
	}
	return strings.TrimSpace(keys[pick]), pick, nil
}

// MaskKey returns a log-safe prefix of key.
func MaskKey(key string) string {
	if len(key) <= 10 {
		return strings.Repeat("*", len(key))
	}
	return fmt.Sprintf("%s...", key[:10])
}

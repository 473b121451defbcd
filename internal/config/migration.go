package config

import "fmt"

// flatTimingKeys were top-level in unversioned files.
var flatTimingKeys = []string{
	"ctrl_term_ms", "alt_term_ms", "gui_term_ms", "base_term_ms",
	"long_hold_term_ms", "deadzone", "buffer_ms",
}

// MigrationResult describes what a migration changed.
type MigrationResult struct {
	FromVersion int
	ToVersion   int
	Changes     []string
}

// migrateRaw upgrades a decoded document in place. A missing version is
// version 0.
func migrateRaw(raw map[string]any) (*MigrationResult, error) {
	from, err := rawVersion(raw)
	if err != nil {
		return nil, err
	}
	if from > Version {
		return nil, fmt.Errorf("config version %d is newer than supported version %d", from, Version)
	}
	if from == Version {
		return nil, nil
	}

	result := &MigrationResult{FromVersion: from, ToVersion: Version}
	for v := from; v < Version; v++ {
		switch v {
		case 0:
			result.Changes = append(result.Changes, migrateV0ToV1(raw)...)
		}
	}
	raw["version"] = Version
	return result, nil
}

func rawVersion(raw map[string]any) (int, error) {
	v, ok := raw["version"]
	if !ok {
		return 0, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("version must be an integer, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("version must be an integer, got %T", v)
	}
}

// migrateV0ToV1 moves flat timing keys into the timing table and renames
// log_level. Values already present in the table win.
func migrateV0ToV1(raw map[string]any) []string {
	var changes []string

	timing, _ := raw["timing"].(map[string]any)
	if timing == nil {
		timing = make(map[string]any)
	}
	for _, k := range flatTimingKeys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		delete(raw, k)
		if _, exists := timing[k]; exists {
			changes = append(changes, fmt.Sprintf("dropped %s (timing.%s already set)", k, k))
			continue
		}
		timing[k] = v
		changes = append(changes, fmt.Sprintf("moved %s to timing.%s", k, k))
	}
	if len(timing) > 0 {
		raw["timing"] = timing
	}

	if v, ok := raw["log_level"]; ok {
		delete(raw, "log_level")
		logging, _ := raw["logging"].(map[string]any)
		if logging == nil {
			logging = make(map[string]any)
		}
		if _, exists := logging["level"]; !exists {
			logging["level"] = v
			changes = append(changes, "moved log_level to logging.level")
		}
		raw["logging"] = logging
	}
	return changes
}

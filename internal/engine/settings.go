package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SettingsKey is the hash key under which adapters keep settings the engine itself cannot store.
func SettingsKey(index string) string {
	return "fedsearch:engine:settings:" + index
}

// EncodeSettings converts settings to a map for HSET.
func EncodeSettings(s Settings) map[string]string {
	synonyms := "{}"
	if len(s.Synonyms) > 0 {
		if b, err := json.Marshal(s.Synonyms); err == nil {
			synonyms = string(b)
		}
	}
	return map[string]string{
		"primary_key": s.PrimaryKey,
		"searchable":  strings.Join(s.Searchable, ","),
		"filterable":  strings.Join(s.Filterable, ","),
		"sortable":    strings.Join(s.Sortable, ","),
		"stop_words":  strings.Join(s.StopWords, ","),
		"synonyms":    synonyms,
	}
}

// DecodeSettings hydrates settings from an HGETALL result map. An empty map yields zero Settings.
func DecodeSettings(m map[string]string) (Settings, error) {
	s := Settings{
		PrimaryKey: m["primary_key"],
		Searchable: splitList(m["searchable"]),
		Filterable: splitList(m["filterable"]),
		Sortable:   splitList(m["sortable"]),
		StopWords:  splitList(m["stop_words"]),
	}
	if raw := m["synonyms"]; raw != "" && raw != "{}" {
		if err := json.Unmarshal([]byte(raw), &s.Synonyms); err != nil {
			return Settings{}, fmt.Errorf("unmarshal synonyms: %w", err)
		}
	}
	return s, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

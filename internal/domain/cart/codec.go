package cart

import "encoding/json"

// EncodeEntries serializes a snapshot for the local ephemeral store.
// The payload is a plain JSON array of entries.
func EncodeEntries(entries []Entry) (string, error) {
	if entries == nil {
		entries = []Entry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeEntries parses a local snapshot payload. Malformed data is a
// non-fatal condition: a payload that does not parse yields an empty set
// with ok=false so the caller can log a warning; entries that parse but are
// individually invalid are dropped by normalization.
func DecodeEntries(payload string) (entries []Entry, ok bool) {
	var raw []Entry
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return []Entry{}, false
	}
	return Normalize(raw), true
}

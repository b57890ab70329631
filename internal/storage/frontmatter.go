package storage

import (
	"bytes"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tessera-kb/tessera/internal/models"
)

// Recognized frontmatter fields. Anything else is preserved in Custom.
const (
	fmKeyTitle    = "title"
	fmKeyTags     = "tags"
	fmKeyAliases  = "aliases"
	fmKeyCreated  = "created"
	fmKeyModified = "modified"
)

// splitFrontmatter separates a leading YAML block (between --- delimiters)
// from the Markdown body and decodes it. Missing or malformed frontmatter
// is not fatal: the whole content becomes the body and metadata stays empty.
func splitFrontmatter(data []byte) (models.NoteMetadata, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return models.NoteMetadata{}, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter, treat everything as body.
		return models.NoteMetadata{}, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var raw map[string]any
	if err := yaml.Unmarshal(yamlBlock, &raw); err != nil {
		return models.NoteMetadata{}, string(data)
	}

	return decodeMetadata(raw), body
}

// decodeMetadata maps the raw frontmatter fields into NoteMetadata,
// routing unrecognized keys into the Custom extension map.
func decodeMetadata(raw map[string]any) models.NoteMetadata {
	var meta models.NoteMetadata
	for key, value := range raw {
		switch key {
		case fmKeyTitle:
			if s, ok := value.(string); ok {
				meta.Title = s
			}
		case fmKeyTags:
			meta.Tags = stringList(value)
		case fmKeyAliases:
			meta.Aliases = stringList(value)
		case fmKeyCreated:
			meta.Created = parseTime(value)
		case fmKeyModified:
			meta.Modified = parseTime(value)
		default:
			if meta.Custom == nil {
				meta.Custom = make(map[string]models.MetaValue)
			}
			meta.Custom[key] = models.NewMetaValue(value)
		}
	}
	return meta
}

// stringList coerces a YAML value into a list of trimmed non-empty strings.
// Accepts both a list and a single scalar.
func stringList(value any) []string {
	var out []string
	add := func(v any) {
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			add(item)
		}
	default:
		add(v)
	}
	return out
}

// parseTime decodes a frontmatter timestamp: a native YAML timestamp,
// RFC 3339, or a plain date.
func parseTime(value any) *time.Time {
	switch v := value.(type) {
	case time.Time:
		return &v
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return &t
			}
		}
	}
	return nil
}

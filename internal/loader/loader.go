package loader

import (
	"context"
	"mime"
	"strings"

	"github.com/roach88/modhost/internal/specifier"
	"github.com/roach88/modhost/internal/value"
)

// MediaType hints how a source should be parsed.
type MediaType string

const (
	MediaUnknown    MediaType = "unknown"
	MediaJavaScript MediaType = "javascript"
	MediaTypeScript MediaType = "typescript"
	MediaJSON       MediaType = "json"
	MediaYAML       MediaType = "yaml"
	MediaCUE        MediaType = "cue"
)

// Source is the fetched text of one module.
type Source struct {
	Specifier specifier.Specifier
	Text      string
	MediaType MediaType

	// Hash is the domain-separated SHA-256 of Text (value.SourceHash).
	Hash string
}

// Fetcher retrieves source text for a canonical specifier.
// Implementations must be safe for concurrent calls on disjoint specifiers.
type Fetcher interface {
	Load(ctx context.Context, s specifier.Specifier) (Source, error)
}

// Loader is the plugin contract the host consumes: resolve raw references
// and load canonical specifiers.
type Loader interface {
	Fetcher
	Resolve(base *specifier.Specifier, raw string) (specifier.Specifier, error)
}

// newSource decodes raw bytes and fills in hash and media type.
// An empty hint derives the media type from the specifier's extension.
func newSource(s specifier.Specifier, data []byte, hint MediaType) (Source, error) {
	text, err := decodeText(data)
	if err != nil {
		return Source{}, loadError(s, KindDecode, err)
	}
	if hint == "" || hint == MediaUnknown {
		hint = MediaTypeFromExt(s.Ext())
	}
	return Source{
		Specifier: s,
		Text:      text,
		MediaType: hint,
		Hash:      value.SourceHash(text),
	}, nil
}

// MediaTypeFromExt maps a file extension (with dot) to a media type.
func MediaTypeFromExt(ext string) MediaType {
	switch strings.ToLower(ext) {
	case ".js", ".mjs", ".cjs":
		return MediaJavaScript
	case ".ts", ".mts", ".cts":
		return MediaTypeScript
	case ".json":
		return MediaJSON
	case ".yaml", ".yml":
		return MediaYAML
	case ".cue":
		return MediaCUE
	default:
		return MediaUnknown
	}
}

// MediaTypeFromContentType maps an HTTP Content-Type header to a media type.
func MediaTypeFromContentType(header string) MediaType {
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return MediaUnknown
	}
	switch mt {
	case "application/javascript", "text/javascript", "application/ecmascript", "text/ecmascript":
		return MediaJavaScript
	case "application/typescript", "text/typescript", "video/mp2t":
		return MediaTypeScript
	case "application/json", "text/json":
		return MediaJSON
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return MediaYAML
	case "application/cue", "text/x-cue":
		return MediaCUE
	default:
		return MediaUnknown
	}
}

// Package media ingests inbound photo and video attachments: detect the
// attachment in a heterogeneous payload, download it, file it in the object
// store under a deterministic key, and link the stored URL into the owning
// checklist item.
package media

import (
	"errors"
	"mime"
	"path"
	"strings"

	"github.com/inspectra/fieldbot/internal/inspection"
	"github.com/inspectra/fieldbot/internal/whatsapp"
)

// Sentinel failures for the pipeline steps. Each maps to a user-facing
// retry message at the orchestrator.
var (
	ErrDownload = errors.New("media: download failed")
	ErrUpload   = errors.New("media: upload failed")
	ErrLink     = errors.New("media: linking failed")
)

// GeneralLocation is the fallback when no checklist location can be
// resolved; media filed here is stored but not linked to any item.
const GeneralLocation = "general"

// MaxDownloadBytes bounds one attachment download.
const MaxDownloadBytes int64 = 64 << 20

// Attachment is one staged inbound file.
type Attachment struct {
	URL      string
	Kind     string // inspection.MediaKindPhoto or MediaKindVideo
	Mimetype string
}

// extractor probes one payload shape for a media URL. Extractors are tried
// in a fixed priority order and the first non-empty match wins, so new
// provider shapes are additive.
type extractor func(d whatsapp.Data) (url, mimetype string)

var extractors = []extractor{
	func(d whatsapp.Data) (string, string) {
		if d.Media != nil && d.Media.URL != "" {
			return d.Media.URL, d.Media.Mimetype
		}
		return "", ""
	},
	func(d whatsapp.Data) (string, string) {
		if d.Media != nil && d.Media.FileURL != "" {
			return d.Media.FileURL, d.Media.Mimetype
		}
		return "", ""
	},
	func(d whatsapp.Data) (string, string) {
		if d.Message != nil && d.Message.Media != nil && d.Message.Media.URL != "" {
			return d.Message.Media.URL, d.Message.Media.Mimetype
		}
		return "", ""
	},
	func(d whatsapp.Data) (string, string) {
		if d.Message != nil && d.Message.URL != "" {
			return d.Message.URL, d.Message.Mimetype
		}
		return "", ""
	},
	func(d whatsapp.Data) (string, string) {
		if d.URL != "" {
			return d.URL, d.Mimetype
		}
		return "", ""
	},
	func(d whatsapp.Data) (string, string) {
		if d.FileURL != "" {
			return d.FileURL, d.Mimetype
		}
		return "", ""
	},
}

// Detect classifies the payload and stages the attachment if one is
// present. A message counts as media when its type tag says so, when a
// media URL field is populated, or when a document declares an image MIME
// type.
func Detect(d whatsapp.Data) (Attachment, bool) {
	url, mimetype := "", ""
	for _, probe := range extractors {
		if u, m := probe(d); u != "" {
			url, mimetype = u, m
			break
		}
	}

	if url == "" {
		return Attachment{}, false
	}
	typeTag := strings.ToLower(strings.TrimSpace(d.Type))
	// documents only count as media when they are images in disguise
	if typeTag == "document" && !strings.HasPrefix(strings.ToLower(mimetype), "image/") {
		return Attachment{}, false
	}

	kind := inspection.MediaKindPhoto
	if typeTag == "video" || strings.HasPrefix(strings.ToLower(mimetype), "video/") {
		kind = inspection.MediaKindVideo
	}
	return Attachment{URL: url, Kind: kind, Mimetype: mimetype}, true
}

// Slug normalizes a name for use in a storage key: lowercase, whitespace
// collapsed to single hyphens, everything else non-alphanumeric stripped.
func Slug(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastHyphen := false
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '\t' || r == '-' || r == '_':
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// extension picks a file extension from the MIME type, falling back to the
// URL path, then to a kind default.
func extension(att Attachment) string {
	if exts, err := mime.ExtensionsByType(att.Mimetype); err == nil && len(exts) > 0 {
		// prefer the conventional spellings over firsts like ".jpe"
		for _, known := range []string{".jpg", ".jpeg", ".png", ".webp", ".mp4", ".mov", ".3gp"} {
			for _, e := range exts {
				if e == known {
					return known
				}
			}
		}
		return exts[0]
	}
	if ext := path.Ext(strings.SplitN(att.URL, "?", 2)[0]); ext != "" && len(ext) <= 5 {
		return strings.ToLower(ext)
	}
	if att.Kind == inspection.MediaKindVideo {
		return ".mp4"
	}
	return ".jpg"
}

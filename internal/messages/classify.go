package messages

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gettogether/peersync/internal/bridge"
)

// MIME markers the daemon uses to tag interactions.
const (
	mimeDataTransfer = "application/data-transfer+json"
	mimeCallHistory  = "application/call-history+json"
)

// Daemon timestamps below this are seconds, at or above already millis.
const millisThreshold = int64(100_000_000_000)

// Body keys that identify a file transfer even when the MIME marker is
// missing or wrong.
var fileIDKeys = []string{"fileId", "tid"}

// FromEvent normalizes one daemon message event. It returns false for
// system messages: non-file messages with a blank body are daemon-internal
// markers and must never reach the cache or the UI.
func FromEvent(ev bridge.MessageEvent) (Message, bool) {
	m := Message{
		ID:             ev.ID,
		ConversationID: ev.ConversationID,
		AuthorURI:      ev.AuthorURI,
		Timestamp:      normalizeTimestamp(ev.Timestamp),
		Status:         StatusDelivered,
	}

	if strings.EqualFold(ev.Type, mimeCallHistory) {
		m.Type = TypeCall
		m.Body = ev.Body["duration"]
		return m, true
	}

	fileID := fileIDFrom(ev.Body)
	if strings.EqualFold(ev.Type, mimeDataTransfer) || fileID != "" {
		name := ev.Body["displayName"]
		m.Type = fileType(name)
		m.Body = name
		m.FileID = fileID
		return m, true
	}

	body := ev.Body["body"]
	if strings.TrimSpace(body) == "" {
		return Message{}, false
	}
	m.Type = TypeText
	m.Body = body
	return m, true
}

func normalizeTimestamp(ts int64) int64 {
	if ts < millisThreshold {
		return ts * 1000
	}
	return ts
}

func fileIDFrom(body map[string]string) string {
	for _, k := range fileIDKeys {
		if v := body[k]; v != "" {
			return v
		}
	}
	return ""
}

// fileType maps a transfer's display name to a message type via its
// extension. Unrecognized extensions stay generic files.
func fileType(name string) Type {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return TypeImage
	case strings.HasPrefix(ct, "video/"):
		return TypeVideo
	case strings.HasPrefix(ct, "audio/"):
		return TypeAudio
	default:
		return TypeFile
	}
}

package review

import (
	"fmt"
	"strings"
	"time"

	"horse.fit/echocave/internal/db"
)

// ElementInput is one raw element of an incoming submission, as the chat
// surface or admin API hands it over.
type ElementInput struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
	Ext  string `json:"ext,omitempty"`
}

// BuildSubmission turns raw elements into a preload entry row plus the
// media source map the orchestrator downloads from. Media file names follow
// the archive convention.
func BuildSubmission(id int64, channelID, userID string, inputs []ElementInput, at time.Time) (*db.Cave, map[string]string, error) {
	elements := make(db.Elements, 0, len(inputs))
	sources := make(map[string]string)

	for i, input := range inputs {
		switch strings.ToLower(strings.TrimSpace(input.Type)) {
		case "text":
			elements = append(elements, db.Element{Type: db.ElementText, Text: input.Text})
		case "media":
			ext := strings.TrimPrefix(strings.TrimSpace(input.Ext), ".")
			if ext == "" {
				ext = extFromURL(input.URL)
			}
			fileName := MediaFileName(id, i, channelID, userID, at, ext)
			elements = append(elements, db.Element{Type: db.ElementMedia, File: fileName})
			sources[fileName] = strings.TrimSpace(input.URL)
		default:
			return nil, nil, fmt.Errorf("elements[%d]: unknown type %q", i, input.Type)
		}
	}

	return &db.Cave{
		ID:        id,
		Elements:  elements,
		ChannelID: strings.TrimSpace(channelID),
		UserID:    strings.TrimSpace(userID),
		Status:    db.StatusPreload,
		CreatedAt: at,
		UpdatedAt: at,
	}, sources, nil
}

func extFromURL(url string) string {
	trimmed := strings.TrimSpace(url)
	if q := strings.IndexByte(trimmed, '?'); q >= 0 {
		trimmed = trimmed[:q]
	}
	if dot := strings.LastIndexByte(trimmed, '.'); dot >= 0 && dot < len(trimmed)-1 {
		candidate := trimmed[dot+1:]
		if len(candidate) <= 5 && !strings.ContainsAny(candidate, "/\\") {
			return strings.ToLower(candidate)
		}
	}
	return "png"
}

package browser

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/net/html"

	"github.com/v0xg/ohmycomment/internal/dom"
	"github.com/v0xg/ohmycomment/internal/locator"
)

//go:embed bridge.js
var bridgeJS string

const (
	bindingName = "__ohmycomment_binding"

	// EventAttr marks the element the last focus or click event hit.
	EventAttr = "data-oh-my-comment-event"
)

// Event types sent by the bridge.
const (
	eventReady      = "ready"
	eventFocus      = "focus"
	eventClick      = "click"
	eventReposition = "reposition"
	eventGenerate   = "generate"

	// Posted by the session itself: eventReply once a generation ends,
	// eventPolicy when the disabled-host list changed.
	eventReply  = "reply"
	eventPolicy = "policy"
)

type event struct {
	Type   string `json:"type"`
	Seq    int    `json:"seq,omitempty"`
	Inside bool   `json:"inside,omitempty"`
	URL    string `json:"url,omitempty"`

	// Set on reply events only.
	target string
	text   string
}

func parseEvent(payload string) (event, error) {
	var e event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return event{}, fmt.Errorf("parse bridge payload: %w", err)
	}
	return e, nil
}

// locate finds the editable field for the event numbered seq in a snapshot
// of the document. It returns the field's XPath, or "" when the event hit
// no editable element.
func locate(doc *html.Node, loc *locator.Locator, seq int) string {
	hit := dom.FindByAttr(doc, EventAttr, strconv.Itoa(seq))
	if hit == nil {
		return ""
	}
	field := loc.Find(hit)
	if field == nil {
		return ""
	}
	return dom.XPath(field)
}

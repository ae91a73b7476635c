package mirai

import (
	"fmt"
	"strconv"
	"strings"
)

// Element types the codec understands. Anything else survives round-trips
// as a generic element.
const (
	ElementSource = "Source"
	ElementPlain  = "Plain"
	ElementAt     = "At"
	ElementAtAll  = "AtAll"
	ElementFace   = "Face"
	ElementImage  = "Image"
)

// Element is one segment of a message chain. The platform sends a
// heterogeneous JSON array; the fields below cover the element kinds the
// bridge renders, everything else keeps only its type tag.
type Element struct {
	Type    string `json:"type"`
	ID      int64  `json:"id,omitempty"`
	Time    int64  `json:"time,omitempty"`
	Text    string `json:"text,omitempty"`
	Target  int64  `json:"target,omitempty"`
	Display string `json:"display,omitempty"`
	FaceID  int64  `json:"faceId,omitempty"`
	ImageID string `json:"imageId,omitempty"`
	URL     string `json:"url,omitempty"`
}

// MessageChain is an ordered list of message elements.
type MessageChain []Element

// Plain builds a chain holding a single text element, for outbound sends.
func Plain(text string) MessageChain {
	return MessageChain{{Type: ElementPlain, Text: text}}
}

// Source returns the chain's source element, or nil when absent. The source
// carries the platform message id and the producer-side creation time.
func (c MessageChain) Source() *Element {
	for i := range c {
		if c[i].Type == ElementSource {
			return &c[i]
		}
	}
	return nil
}

// PersistentString serializes the chain into mirai's persistent string form:
// plain text with `\`, `[` and `]` escaped, other elements encoded as
// [mirai:type:args]. The source element is metadata, not content, and is
// skipped. The result is what the archive stores as the opaque payload.
func (c MessageChain) PersistentString() string {
	var b strings.Builder
	for _, el := range c {
		switch el.Type {
		case ElementSource:
		case ElementPlain:
			b.WriteString(escapePersistent(el.Text))
		case ElementAt:
			fmt.Fprintf(&b, "[mirai:at:%d]", el.Target)
		case ElementAtAll:
			b.WriteString("[mirai:atall]")
		case ElementFace:
			fmt.Fprintf(&b, "[mirai:face:%d]", el.FaceID)
		case ElementImage:
			fmt.Fprintf(&b, "[mirai:image:%s]", el.ImageID)
		default:
			fmt.Fprintf(&b, "[mirai:%s]", strings.ToLower(el.Type))
		}
	}
	return b.String()
}

// ParsePersistentString decodes a persistent string back into a chain. It is
// the inverse of PersistentString for every element kind that method emits.
func ParsePersistentString(s string) MessageChain {
	chain := MessageChain{}
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			chain = append(chain, Element{Type: ElementPlain, Text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(s); {
		switch {
		case s[i] == '\\' && i+1 < len(s):
			text.WriteByte(s[i+1])
			i += 2
		case strings.HasPrefix(s[i:], "[mirai:"):
			end := indexUnescaped(s[i:], ']')
			if end < 0 {
				text.WriteByte(s[i])
				i++
				continue
			}
			flush()
			chain = append(chain, parseElement(s[i+len("[mirai:"):i+end]))
			i += end + 1
		default:
			text.WriteByte(s[i])
			i++
		}
	}
	flush()
	return chain
}

// DisplayText renders the chain as a single human-readable line for the web
// UI. Non-text elements collapse to short bracketed markers.
func (c MessageChain) DisplayText() string {
	var b strings.Builder
	for _, el := range c {
		switch el.Type {
		case ElementSource:
		case ElementPlain:
			b.WriteString(el.Text)
		case ElementAt:
			if el.Display != "" {
				b.WriteString(el.Display)
			} else {
				fmt.Fprintf(&b, "@%d", el.Target)
			}
		case ElementAtAll:
			b.WriteString("@全体成员")
		case ElementFace:
			fmt.Fprintf(&b, "[表情:%d]", el.FaceID)
		case ElementImage:
			b.WriteString("[图片]")
		default:
			fmt.Fprintf(&b, "[%s]", el.Type)
		}
	}
	return b.String()
}

func parseElement(body string) Element {
	name, arg, _ := strings.Cut(body, ":")
	switch name {
	case "at":
		target, _ := strconv.ParseInt(arg, 10, 64)
		return Element{Type: ElementAt, Target: target}
	case "atall":
		return Element{Type: ElementAtAll}
	case "face":
		faceID, _ := strconv.ParseInt(arg, 10, 64)
		return Element{Type: ElementFace, FaceID: faceID}
	case "image":
		return Element{Type: ElementImage, ImageID: arg}
	default:
		return Element{Type: name}
	}
}

func escapePersistent(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`)
	return r.Replace(text)
}

// indexUnescaped returns the index of the first unescaped occurrence of sep
// in s, or -1.
func indexUnescaped(s string, sep byte) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case sep:
			return i
		}
	}
	return -1
}

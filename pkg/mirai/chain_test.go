package mirai

import (
	"reflect"
	"testing"
)

func TestPersistentStringRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		chain MessageChain
		want  string
	}{
		{
			"plain text",
			MessageChain{{Type: ElementPlain, Text: "hello"}},
			"hello",
		},
		{
			"brackets and backslashes escaped",
			MessageChain{{Type: ElementPlain, Text: `a[b]c\d`}},
			`a\[b\]c\\d`,
		},
		{
			"at mention",
			MessageChain{
				{Type: ElementAt, Target: 100},
				{Type: ElementPlain, Text: " hi"},
			},
			"[mirai:at:100] hi",
		},
		{
			"at all",
			MessageChain{{Type: ElementAtAll}},
			"[mirai:atall]",
		},
		{
			"face and image",
			MessageChain{
				{Type: ElementFace, FaceID: 123},
				{Type: ElementImage, ImageID: "{ABC}.png"},
			},
			"[mirai:face:123][mirai:image:{ABC}.png]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.chain.PersistentString()
			if got != tt.want {
				t.Fatalf("encode = %q, want %q", got, tt.want)
			}
			back := ParsePersistentString(got)
			if !reflect.DeepEqual(back, roundTripView(tt.chain)) {
				t.Errorf("decode = %+v, want %+v", back, roundTripView(tt.chain))
			}
		})
	}
}

// roundTripView strips the fields the persistent form does not carry, so a
// decoded chain can be compared against the original.
func roundTripView(c MessageChain) MessageChain {
	out := make(MessageChain, 0, len(c))
	for _, el := range c {
		switch el.Type {
		case ElementSource:
		case ElementAt:
			out = append(out, Element{Type: ElementAt, Target: el.Target})
		default:
			el.ID, el.Time, el.Display, el.URL = 0, 0, "", ""
			out = append(out, el)
		}
	}
	return out
}

func TestPersistentStringSkipsSource(t *testing.T) {
	chain := MessageChain{
		{Type: ElementSource, ID: 42, Time: 1700000000},
		{Type: ElementPlain, Text: "payload"},
	}
	if got := chain.PersistentString(); got != "payload" {
		t.Errorf("encode = %q, want %q", got, "payload")
	}
}

func TestParsePersistentStringTreatsDanglingBracketAsText(t *testing.T) {
	got := ParsePersistentString("[mirai:at:100 and no close")
	want := MessageChain{{Type: ElementPlain, Text: "[mirai:at:100 and no close"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("decode = %+v, want %+v", got, want)
	}
}

func TestDisplayText(t *testing.T) {
	tests := []struct {
		name  string
		chain MessageChain
		want  string
	}{
		{
			"mixed chain",
			MessageChain{
				{Type: ElementSource, ID: 1},
				{Type: ElementAt, Target: 100, Display: "@alice"},
				{Type: ElementPlain, Text: " look "},
				{Type: ElementImage, ImageID: "x"},
			},
			"@alice look [图片]",
		},
		{
			"at without display falls back to id",
			MessageChain{{Type: ElementAt, Target: 100}},
			"@100",
		},
		{
			"at all and face",
			MessageChain{
				{Type: ElementAtAll},
				{Type: ElementFace, FaceID: 7},
			},
			"@全体成员[表情:7]",
		},
		{
			"unknown element keeps its tag",
			MessageChain{{Type: "MusicShare"}},
			"[MusicShare]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.chain.DisplayText(); got != tt.want {
				t.Errorf("display = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSource(t *testing.T) {
	chain := MessageChain{
		{Type: ElementPlain, Text: "x"},
		{Type: ElementSource, ID: 9, Time: 1700000000},
	}
	src := chain.Source()
	if src == nil || src.ID != 9 || src.Time != 1700000000 {
		t.Fatalf("source = %+v", src)
	}
	if Plain("y").Source() != nil {
		t.Error("chain without source element should return nil")
	}
}

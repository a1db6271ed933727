package capture

import (
	"strings"
	"testing"
)

func TestDraftValid(t *testing.T) {
	d := Draft{Text: "remember this", Source: SourceExtension}
	if err := d.Validate(); err != nil {
		t.Fatalf("valid draft rejected: %v", err)
	}
}

func TestDraftEmptyText(t *testing.T) {
	d := Draft{Text: "", Source: SourceWeb}
	if err := d.Validate(); err == nil {
		t.Fatal("empty text should fail validation")
	}
}

func TestDraftTextTooLong(t *testing.T) {
	d := Draft{Text: strings.Repeat("a", MaxTextLen+1), Source: SourceAPI}
	if err := d.Validate(); err == nil {
		t.Fatal("oversized text should fail validation")
	}
}

func TestDraftTextAtLimit(t *testing.T) {
	d := Draft{Text: strings.Repeat("a", MaxTextLen), Source: SourceAPI}
	if err := d.Validate(); err != nil {
		t.Fatalf("text at limit should pass: %v", err)
	}
}

func TestDraftUnknownSource(t *testing.T) {
	d := Draft{Text: "x", Source: Source("carrier-pigeon")}
	if err := d.Validate(); err == nil {
		t.Fatal("unknown source should fail validation")
	}
}

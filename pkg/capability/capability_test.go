package capability

import "testing"

func TestDefaultsKnownChannels(t *testing.T) {
	p := Defaults()

	if !p.SupportsButtons("telegram") {
		t.Fatal("telegram should support buttons")
	}
	if got := p.MaxButtonsPerRow("discord"); got != 5 {
		t.Fatalf("discord buttons per row = %d, want 5", got)
	}
}

func TestUnknownChannelFallsBackToTextOnly(t *testing.T) {
	p := Defaults()

	if p.SupportsButtons("smtp") {
		t.Fatal("unknown channel should not support buttons")
	}
	if got := p.MaxButtonRows("smtp"); got != 1 {
		t.Fatalf("fallback rows = %d, want 1", got)
	}
}

func TestRegisterOverride(t *testing.T) {
	p := Defaults()
	p.Register("telegram", Caps{Buttons: true, ButtonsPerRow: 3, ButtonRows: 2})

	if got := p.MaxButtonsPerRow("telegram"); got != 3 {
		t.Fatalf("override per row = %d, want 3", got)
	}
}

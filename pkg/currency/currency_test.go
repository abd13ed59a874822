package currency

import "testing"

func TestConverter_ToDisplay(t *testing.T) {
	c := NewConverter("usd", nil)

	tests := []struct {
		name   string
		amount float64
		from   string
		want   float64
	}{
		{"same currency", 120, "USD", 120},
		{"euro to dollar", 100, "EUR", 108},
		{"unknown currency defaults to 1:1", 50, "XYZ", 50},
		{"empty currency defaults to 1:1", 75.5, "", 75.5},
		{"negative clamps to zero", -10, "USD", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.ToDisplay(tt.amount, tt.from); got != tt.want {
				t.Errorf("ToDisplay(%v, %q) = %v, want %v", tt.amount, tt.from, got, tt.want)
			}
		})
	}
}

func TestConverter_NonUSDDisplay(t *testing.T) {
	c := NewConverter("EUR", map[string]float64{"EUR": 1.25})

	if got := c.ToDisplay(125, "USD"); got != 100 {
		t.Errorf("expected 100 EUR, got %v", got)
	}
	if c.Display() != "EUR" {
		t.Errorf("expected display EUR, got %s", c.Display())
	}
}

func TestFormat(t *testing.T) {
	if got := Format(214.6, "USD"); got != "$215" {
		t.Errorf("got %q", got)
	}
	if got := Format(99, "SEK"); got != "99 SEK" {
		t.Errorf("got %q", got)
	}
}

package models

import "testing"

func TestNewSourcePricing(t *testing.T) {
	sizes := []SizePrice{
		{Size: "US 11", PriceInDisplayCurrency: 240, Available: true},
		{Size: "US 9.5", PriceInDisplayCurrency: 180, Available: false},
		{Size: "US 10", PriceInDisplayCurrency: 210, Available: true},
		{Size: "us 10", PriceInDisplayCurrency: 205, Available: true},
		{Size: "US 4", PriceInDisplayCurrency: 150, Available: true},
		{Size: " ", PriceInDisplayCurrency: 1, Available: true},
	}

	p := NewSourcePricing("stockx", "Dunk Low Panda", "https://stockx.com/x", "", sizes)

	want := []string{"US 4", "US 9.5", "us 10", "US 11"}
	if len(p.Sizes) != len(want) {
		t.Fatalf("expected %d sizes, got %d: %+v", len(want), len(p.Sizes), p.Sizes)
	}
	for i, s := range want {
		if p.Sizes[i].Size != s {
			t.Errorf("size %d: expected %q, got %q", i, s, p.Sizes[i].Size)
		}
	}

	if p.LowestPrice != 150 {
		t.Errorf("expected lowest price 150, got %v", p.LowestPrice)
	}
}

func TestNewSourcePricing_NoneAvailable(t *testing.T) {
	p := NewSourcePricing("goat", "x", "", "", []SizePrice{
		{Size: "9", PriceInDisplayCurrency: 100},
		{Size: "8", PriceInDisplayCurrency: 90},
	})

	if p.LowestPrice != 0 {
		t.Errorf("expected lowest price 0 when nothing is available, got %v", p.LowestPrice)
	}
	if p.Sizes[0].Size != "8" {
		t.Errorf("expected sizes sorted ascending, got %+v", p.Sizes)
	}
}

func TestSizeValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"10.5", 10.5, true},
		{"US 9", 9, true},
		{"W 7.5", 7.5, true},
		{"OS", 0, false},
	}
	for _, tt := range tests {
		got, ok := SizeValue(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("SizeValue(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

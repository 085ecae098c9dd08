package parser

import (
	"testing"
)

const noSlotsPhrase = "نعتذر منكم ! لا يوجد أي موعد متاح حاليا."

func TestCollapseWhitespace(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "only spaces", in: " \t\n ", want: ""},
		{name: "trims", in: "  hello  ", want: "hello"},
		{name: "inner runs", in: "a \n\t b   c", want: "a b c"},
		{name: "non-breaking space", in: "a  b", want: "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CollapseWhitespace(tt.in); got != tt.want {
				t.Fatalf("CollapseWhitespace(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestContainsPhrase(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		phrase string
		want   bool
	}{
		{name: "exact", text: noSlotsPhrase, phrase: noSlotsPhrase, want: true},
		{name: "embedded", text: "header\n" + noSlotsPhrase + "\nfooter", phrase: noSlotsPhrase, want: true},
		{name: "reflowed whitespace", text: "نعتذر منكم !\n   لا يوجد أي موعد\tمتاح حاليا.", phrase: noSlotsPhrase, want: true},
		{name: "missing trailing dot", text: "نعتذر منكم ! لا يوجد أي موعد متاح حاليا", phrase: noSlotsPhrase, want: false},
		{name: "case sensitive", text: "No Slots", phrase: "no slots", want: false},
		{name: "empty phrase never matches", text: "anything", phrase: "  ", want: false},
		{name: "absent", text: "مرحبا", phrase: noSlotsPhrase, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContainsPhrase(tt.text, tt.phrase); got != tt.want {
				t.Fatalf("ContainsPhrase() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "digits", value: "320600000120", wantErr: false},
		{name: "empty", value: "", wantErr: true},
		{name: "letters", value: "12a4", wantErr: true},
		{name: "arabic-indic digits", value: "١٢٣", wantErr: true},
		{name: "dash", value: "12-34", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier("N1", tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	if got := NormalizeIdentifier(" 3206 0000 0120\n"); got != "320600000120" {
		t.Fatalf("NormalizeIdentifier() = %q", got)
	}
}

func TestMaskIdentifier(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"123":          "***",
		"1234":         "****",
		"320600000120": "********0120",
	}
	for in, want := range tests {
		if got := MaskIdentifier(in); got != want {
			t.Fatalf("MaskIdentifier(%q) = %q, want %q", in, got, want)
		}
	}
}

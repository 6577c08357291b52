package util

import (
	"strings"
	"testing"

	"github.com/ValentinKolb/marines/lib/marine"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("line %q longer than %d", line, Wrap)
		}
	}
	if got := WrapString("short text"); got != "short text" {
		t.Errorf("WrapString() = %q", got)
	}
}

func TestParseMarine(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:  "valid",
			input: `{"name":"Titus","coordinates":{"x":1,"y":2},"health":10,"category":"TACTICAL","weaponType":"BOLT_RIFLE","meleeWeapon":"CHAIN_SWORD","chapter":{"name":"Ultramarines"}}`,
		},
		{name: "empty", input: " ", wantErr: true},
		{name: "unknown field", input: `{"name":"Titus","rank":"captain"}`, wantErr: true},
		{name: "unknown weapon", input: `{"name":"Titus","health":1,"weaponType":"LASGUN","meleeWeapon":"CHAIN_SWORD"}`, wantErr: true},
		{name: "invalid health", input: `{"name":"Titus","health":0,"weaponType":"BOLT_RIFLE","meleeWeapon":"CHAIN_SWORD"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseMarine(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMarine() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (m.Category != marine.CategoryTactical || m.Chapter == nil || m.Chapter.Name != "Ultramarines") {
				t.Errorf("unexpected marine %+v", m)
			}
		})
	}
}

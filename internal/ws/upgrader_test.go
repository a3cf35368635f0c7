package ws

import (
	"net/http/httptest"
	"testing"
)

func TestUpgraderCheckOrigin(t *testing.T) {
	up := NewUpgrader([]string{"https://app.secujob.fr"}, false)

	cases := map[string]bool{
		"https://app.secujob.fr": true,
		"https://evil.example":   false,
		"":                       true,
	}
	for origin, want := range cases {
		r := httptest.NewRequest("GET", "/threads/1/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := up.CheckOrigin(r); got != want {
			t.Errorf("origin %q: got %v, want %v", origin, got, want)
		}
	}

	dev := NewUpgrader(nil, true)
	r := httptest.NewRequest("GET", "/threads/1/ws", nil)
	r.Header.Set("Origin", "http://anything.local")
	if !dev.CheckOrigin(r) {
		t.Fatal("development upgrader must accept any origin")
	}
}

package hostport

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		authority string
		scheme    string
		want      string
		wantErr   bool
	}{
		{"bare host", "health.example.org", "https", "health.example.org", false},
		{"https default port stripped", "health.example.org:443", "https", "health.example.org", false},
		{"http default port stripped", "health.example.org:80", "http", "health.example.org", false},
		{"non-default port kept", "localhost:8080", "https", "localhost:8080", false},
		{"443 kept for http", "example.org:443", "http", "example.org:443", false},
		{"lowercased", "Health.Example.ORG", "https", "health.example.org", false},
		{"whitespace trimmed", "  example.org  ", "https", "example.org", false},
		{"ipv6 bare", "[::1]", "https", "[::1]", false},
		{"ipv6 with port", "[::1]:9200", "https", "[::1]:9200", false},
		{"ipv6 default port stripped", "[::1]:443", "https", "[::1]", false},

		{"empty", "", "https", "", true},
		{"scheme", "https://example.org", "https", "", true},
		{"path", "example.org/invite", "https", "", true},
		{"userinfo", "bob@example.org", "https", "", true},
		{"query", "example.org?x=1", "https", "", true},
		{"port only", ":8080", "https", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.authority, tt.scheme)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAuthority) {
					t.Fatalf("Normalize(%q) error = %v, want ErrInvalidAuthority", tt.authority, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) unexpected error: %v", tt.authority, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.authority, got, tt.want)
			}
		})
	}
}

func TestProvider(t *testing.T) {
	got, err := Provider("Clinic.Example.org:443")
	if err != nil {
		t.Fatal(err)
	}
	if got != "clinic.example.org" {
		t.Errorf("Provider() = %q", got)
	}
}

package auth

import "testing"

func TestDeriveCookieSettings(t *testing.T) {
	tests := []struct {
		name         string
		baseURL      string
		configDomain string
		wantSecure   bool
		wantDomain   string
	}{
		{"localhost http", "http://localhost:8018", "", false, ""},
		{"internal https", "https://queryweave.internal", "", true, ".internal"},
		{"custom host", "https://orchestrator.example.com", "", true, ""},
		{"explicit domain override", "http://localhost:8018", ".example.com", false, ".example.com"},
		{"empty url safe default", "", "", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveCookieSettings(tt.baseURL, tt.configDomain)
			if got.Secure != tt.wantSecure {
				t.Errorf("Secure = %v, want %v", got.Secure, tt.wantSecure)
			}
			if got.Domain != tt.wantDomain {
				t.Errorf("Domain = %q, want %q", got.Domain, tt.wantDomain)
			}
		})
	}
}

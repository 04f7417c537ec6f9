package security

import (
	"testing"
	"time"
)

// TestValidateURL は危険なURLが拒否されることを検証する。
func TestValidateURL(t *testing.T) {
	g := NewWebhookGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public https", "https://hooks.example.com/notify", false},
		{"public http", "http://hooks.example.com/notify", false},
		{"empty", "", true},
		{"ftp scheme", "ftp://example.com/file", true},
		{"javascript scheme", "javascript:alert(1)", true},
		{"localhost", "http://localhost/notify", true},
		{"loopback IP", "http://127.0.0.1/notify", true},
		{"private IP 10", "http://10.0.0.5/notify", true},
		{"private IP 172", "http://172.16.0.1/notify", true},
		{"private IP 192", "http://192.168.1.1/notify", true},
		{"metadata IP", "http://169.254.169.254/latest/meta-data/", true},
		{"IPv6 loopback", "http://[::1]/notify", true},
		{"no host", "http:///notify", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

// TestNewSafeClient はSSRF防止クライアントが生成されることを検証する。
func TestNewSafeClient(t *testing.T) {
	g := NewWebhookGuard()
	client := g.NewSafeClient(5 * time.Second)
	if client == nil {
		t.Fatal("NewSafeClient returned nil")
	}
}

// TestSanitizeText はHTMLタグの除去と実体参照のデコードを検証する。
func TestSanitizeText(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		input string
		want  string
	}{
		{"Unit 5 <b>Vocabulary</b>", "Unit 5 Vocabulary"},
		{"<script>alert(1)</script>Unit 1", "Unit 1"},
		{"Fish &amp; Chips", "Fish & Chips"},
		{"  plain title  ", "plain title"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := s.SanitizeText(tt.input); got != tt.want {
			t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	// 冪等性
	once := s.SanitizeText("<em>Unit 2</em> Grammar")
	twice := s.SanitizeText(once)
	if once != twice {
		t.Errorf("SanitizeText is not idempotent: %q != %q", once, twice)
	}
}

package moderation

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClassify(t *testing.T) {
	filter := NewFilter()

	tests := []struct {
		name       string
		text       string
		wantStatus Status
		wantReason string
	}{
		{
			name:       "plain greeting allowed",
			text:       "Merhaba, nasılsın?",
			wantStatus: StatusAllow,
		},
		{
			name:       "empty text allowed",
			text:       "",
			wantStatus: StatusAllow,
		},
		{
			name:       "phone number blocked",
			text:       "beni ara 0532 123 45 67",
			wantStatus: StatusBlocked,
			wantReason: "contains contact information",
		},
		{
			name:       "international phone number blocked",
			text:       "+905321234567 yaz bana",
			wantStatus: StatusBlocked,
			wantReason: "contains contact information",
		},
		{
			name:       "banned term blocked case insensitive",
			text:       "önce IBAN numarama kapora gönder",
			wantStatus: StatusBlocked,
			wantReason: "contains a banned term",
		},
		{
			name:       "outside app warned",
			text:       "WhatsApp üzerinden devam edelim",
			wantStatus: StatusWarn,
			wantReason: "contains a suspicious term",
		},
		{
			name:       "link warned",
			text:       "profilim burada https://example.com/profil",
			wantStatus: StatusWarn,
			wantReason: "contains a link",
		},
		{
			name:       "www link warned",
			text:       "bak www.example.com",
			wantStatus: StatusWarn,
			wantReason: "contains a link",
		},
		{
			name:       "block wins over warn",
			text:       "whatsapp yaz 0532 123 45 67",
			wantStatus: StatusBlocked,
			wantReason: "contains contact information",
		},
		{
			name:       "short number sequence allowed",
			text:       "saat 18:30 uygun mu",
			wantStatus: StatusAllow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filter.Classify(tt.text)
			if got.Status != tt.wantStatus {
				t.Errorf("Classify(%q).Status = %s, want %s", tt.text, got.Status, tt.wantStatus)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Classify(%q).Reason = %q, want %q", tt.text, got.Reason, tt.wantReason)
			}
			if tt.wantStatus != StatusAllow && got.Term == "" {
				t.Errorf("Classify(%q) expected a matched term", tt.text)
			}
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	filter := NewFilter()
	text := "telegram hesabım var"

	first := filter.Classify(text)
	for i := 0; i < 10; i++ {
		if got := filter.Classify(text); got != first {
			t.Fatalf("Classify(%q) changed between calls: %+v vs %+v", text, first, got)
		}
	}
}

func TestClassifyCustomRules(t *testing.T) {
	filter := NewFilterWithRules(Rules{
		BlockedTerms: []string{"Yasak"},
		WarnTerms:    []string{"şüpheli"},
	})

	if got := filter.Classify("bu YASAK bir kelime"); got.Status != StatusBlocked {
		t.Errorf("Expected custom blocked term to block, got %+v", got)
	}
	if got := filter.Classify("biraz şüpheli bir durum"); got.Status != StatusWarn {
		t.Errorf("Expected custom warn term to warn, got %+v", got)
	}
	if got := filter.Classify("whatsapp"); got.Status != StatusAllow {
		t.Errorf("Expected default rules to be replaced, got %+v", got)
	}
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	content := `{"blocked_terms": ["kapora"], "warn_terms": ["signal"]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write rules file: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("Failed to load rules: %v", err)
	}
	if len(rules.BlockedTerms) != 1 || rules.BlockedTerms[0] != "kapora" {
		t.Errorf("Expected blocked terms [kapora], got %v", rules.BlockedTerms)
	}

	filter := NewFilterWithRules(rules)
	if got := filter.Classify("Signal hesabım var"); got.Status != StatusWarn {
		t.Errorf("Expected loaded warn term to warn, got %+v", got)
	}
}

func TestLoadRulesErrors(t *testing.T) {
	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Errorf("Expected error for missing file")
	}

	empty := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(empty, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("Failed to write empty rules file: %v", err)
	}
	if _, err := LoadRules(empty); err == nil {
		t.Errorf("Expected error for rules file with no terms")
	}
}

package email

import (
	"strings"
	"testing"
)

func TestIsConfigured(t *testing.T) {
	cases := []struct {
		name   string
		config Config
		want   bool
	}{
		{name: "empty", config: Config{}, want: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, want: false},
		{name: "complete", config: Config{Host: "smtp.example.com", Port: "587", From: "noreply@example.com"}, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NewService(tc.config).IsConfigured(); got != tc.want {
				t.Fatalf("IsConfigured() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSendFailsWhenUnconfigured(t *testing.T) {
	svc := NewService(Config{})

	if err := svc.SendEmail([]string{"a@b.c"}, "subject", "body"); err == nil {
		t.Fatal("expected error when unconfigured")
	}
	if err := svc.SendShareInvitation("a@b.c", "Ada", "Grace", "Home", "edit"); err == nil {
		t.Fatal("expected error when unconfigured")
	}
}

func TestShareInvitationTemplate(t *testing.T) {
	html, err := renderTemplate(shareInvitationTemplate, ShareInvitationData{
		AppName:     "Todopus",
		UserName:    "Ada",
		GranterName: "Grace",
		ProjectName: "Launch Plan",
		Level:       "edit",
	})
	if err != nil {
		t.Fatalf("renderTemplate() error = %v", err)
	}
	for _, want := range []string{"Ada", "Grace", "Launch Plan", "edit"} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered template missing %q", want)
		}
	}
}

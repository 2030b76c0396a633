package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/stockgate/internal/model"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(ManagerConfig{Secret: []byte("test-session-secret-32bytes-long!"), MaxAge: time.Hour})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestNewManager_Validation(t *testing.T) {
	if _, err := NewManager(ManagerConfig{MaxAge: time.Hour}); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := NewManager(ManagerConfig{Secret: []byte("s")}); err == nil {
		t.Error("expected error for zero max age")
	}
}

func TestIssueAndParse_RoundTrip(t *testing.T) {
	m := newTestManager(t)

	token, expiresAt, err := m.Issue(model.Claim{Email: "User@Example.com", Name: "User", Image: "https://img/u.png"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	s, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if s.Email != "user@example.com" {
		t.Errorf("Email = %q, want %q", s.Email, "user@example.com")
	}
	if s.Name != "User" || s.Image != "https://img/u.png" {
		t.Errorf("Name/Image = %q/%q", s.Name, s.Image)
	}
	if s.ID != "" || s.Role != "" {
		t.Errorf("parsed session must not carry enrichment fields, got ID=%q Role=%q", s.ID, s.Role)
	}
	if !s.ExpiresAt.Equal(expiresAt.Truncate(time.Second)) {
		t.Errorf("ExpiresAt = %v, want %v", s.ExpiresAt, expiresAt.Truncate(time.Second))
	}
}

func TestIssue_EmptyEmail(t *testing.T) {
	m := newTestManager(t)
	if _, _, err := m.Issue(model.Claim{}); !errors.Is(err, model.ErrInvalidClaim) {
		t.Errorf("Issue() error = %v, want ErrInvalidClaim", err)
	}
}

func TestParse_Rejects(t *testing.T) {
	m := newTestManager(t)
	valid, _, err := m.Issue(model.Claim{Email: "a@x.com"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	otherClaim, _, _ := m.Issue(model.Claim{Email: "b@x.com"})
	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + strings.Split(otherClaim, ".")[1] + "." + parts[2]

	other, _ := NewManager(ManagerConfig{Secret: []byte("another-secret"), MaxAge: time.Hour})
	foreign, _, _ := other.Issue(model.Claim{Email: "a@x.com"})

	expired := newTestManager(t)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, _, _ := expired.Issue(model.Claim{Email: "a@x.com"})

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Email: "a@x.com"})
	noneToken, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"tampered payload", tampered},
		{"other secret", foreign},
		{"expired", expiredToken},
		{"alg none", noneToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := m.Parse(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
			}
			if s != nil {
				t.Errorf("Parse() session = %+v, want nil", s)
			}
		})
	}
}

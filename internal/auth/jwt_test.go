package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	id, _ := newKey(t)
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.Generate(id)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	got, err := claims.Identity()
	if err != nil {
		t.Fatalf("Identity failed: %v", err)
	}
	if got != id {
		t.Errorf("identity = %s, want %s", got, id)
	}
}

func TestJWTRejects(t *testing.T) {
	id, _ := newKey(t)
	m := NewJWTManager("test-secret", time.Hour)

	otherSecret, _ := NewJWTManager("other-secret", time.Hour).Generate(id)
	expired, _ := NewJWTManager("test-secret", -time.Minute).Generate(id)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", otherSecret},
		{"expired", expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Validate(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Validate error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

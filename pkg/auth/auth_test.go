package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "mifos", ExpiresAt: jwt.NewNumericDate(exp)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestNewCredential_OpaqueTokenNeverExpires(t *testing.T) {
	c := NewCredential("bWlmb3M6cGFzc3dvcmQ=", "mifos", "default", time.Now())
	if !c.ExpiresAt.IsZero() {
		t.Errorf("opaque token should have no expiry, got %v", c.ExpiresAt)
	}
	if !c.Valid(time.Now().Add(24 * 365 * time.Hour)) {
		t.Error("opaque token should stay valid")
	}
}

func TestNewCredential_JWTExpiry(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	c := NewCredential(signed(t, now.Add(time.Hour)), "mifos", "default", now)

	if !c.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("expected expiry from exp claim, got %v", c.ExpiresAt)
	}
	if !c.Valid(now) {
		t.Error("credential should be valid before expiry")
	}
	if c.Valid(now.Add(2 * time.Hour)) {
		t.Error("credential should be invalid after expiry")
	}
}

func TestCredential_NilAndEmpty(t *testing.T) {
	var c *Credential
	if c.Valid(time.Now()) {
		t.Error("nil credential must be invalid")
	}
	if NewCredential("   ", "u", "t", time.Now()).Valid(time.Now()) {
		t.Error("blank token must be invalid")
	}
}

func TestTokenHolder_StoreLoadClear(t *testing.T) {
	h := NewTokenHolder()
	if h.Valid() {
		t.Fatal("empty holder must not be valid")
	}
	if _, ok := h.Token(); ok {
		t.Fatal("empty holder must not yield a token")
	}

	h.Store(NewCredential("abc", "mifos", "default", time.Now()))
	if tok, ok := h.Token(); !ok || tok != "abc" {
		t.Errorf("expected token abc, got %q %v", tok, ok)
	}

	h.Clear()
	if h.Valid() || h.Load() != nil {
		t.Error("cleared holder must be empty")
	}
}

func TestTokenHolder_ExpiredCredential(t *testing.T) {
	base := time.Now()
	h := NewTokenHolder()
	h.now = func() time.Time { return base.Add(2 * time.Hour) }
	h.Store(NewCredential(signed(t, base.Add(time.Hour)), "mifos", "default", base))

	if h.Valid() {
		t.Error("expired credential must not be valid")
	}
}

func TestTokenHolder_ConcurrentReadersSeeWholeCredential(t *testing.T) {
	h := NewTokenHolder()
	a := NewCredential("token-a", "user-a", "tenant-a", time.Now())
	b := NewCredential("token-b", "user-b", "tenant-b", time.Now())
	h.Store(a)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				h.Store(b)
				h.Store(a)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c := h.Load()
				if c.Token == "token-a" && c.Username != "user-a" {
					t.Errorf("torn read: %+v", c)
					return
				}
				if c.Token == "token-b" && c.Username != "user-b" {
					t.Errorf("torn read: %+v", c)
					return
				}
			}
		}()
	}
	wg.Wait()
}

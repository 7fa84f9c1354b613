package auth

import (
	"testing"
	"time"
)

func TestGeneratePairRoundTrip(t *testing.T) {
	tm := NewTokenManager("acc", "ref", "lolmarket", time.Minute, time.Hour)
	access, refresh, exp, err := tm.GeneratePair("u1", "admin")
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("access expiry in the past: %v", exp)
	}

	c, isRefresh, err := tm.ParseAny(access)
	if err != nil || isRefresh {
		t.Fatalf("access token: refresh=%v err=%v", isRefresh, err)
	}
	if c.UserID != "u1" || c.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", c)
	}

	if _, isRefresh, err = tm.ParseAny(refresh); err != nil || !isRefresh {
		t.Fatalf("refresh token: refresh=%v err=%v", isRefresh, err)
	}
}

func TestParseRejectsForeignAndExpired(t *testing.T) {
	tm := NewTokenManager("acc", "ref", "lolmarket", time.Minute, time.Hour)
	other := NewTokenManager("other", "other", "lolmarket", time.Minute, time.Hour)
	access, _, _, _ := other.GeneratePair("u1", "user")
	if _, _, err := tm.ParseAny(access); err == nil {
		t.Fatal("token signed with another secret accepted")
	}

	wrongIssuer := NewTokenManager("acc", "ref", "someone-else", time.Minute, time.Hour)
	access, _, _, _ = wrongIssuer.GeneratePair("u1", "user")
	if _, _, err := tm.ParseAny(access); err == nil {
		t.Fatal("token from another issuer accepted")
	}

	access, _, _, _ = tm.GeneratePair("u1", "user")
	tm.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, _, err := tm.ParseAny(access); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if VerifyPassword("hunter22", h) != nil {
		t.Fatal("correct password rejected")
	}
	if VerifyPassword("hunter23", h) == nil {
		t.Fatal("wrong password accepted")
	}
}

package license

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func validKey() string {
	return GenerateKey("AAAA", "BBBB", "CCCC")
}

func TestGenerateKeyPassesFormatCheck(t *testing.T) {
	v := New(validKey())
	if err := v.ValidateFormat(); err != nil {
		t.Fatalf("ValidateFormat: %v", err)
	}
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		key string
		ok  bool
	}{
		{validKey(), true},
		{"", false},
		{"TUSK-AAAA-BBBB-CCCC", false},
		{"TUSK-AAAA-BBBB-CCCC-0000", false}, // checksum mismatch
		{"NOPE-AAAA-BBBB-CCCC-DDDD", false},
	}
	for _, tt := range tests {
		err := New(tt.key).ValidateFormat()
		if (err == nil) != tt.ok {
			t.Errorf("ValidateFormat(%q) = %v", tt.key, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ValidateFormat(%q) err = %v, want ErrInvalidKey", tt.key, err)
		}
	}
}

func TestKeyIsNormalized(t *testing.T) {
	lower := "  " + validKey() + "  "
	v := New(lower)
	if err := v.ValidateFormat(); err != nil {
		t.Fatalf("whitespace-padded key rejected: %v", err)
	}
}

func TestVerifyOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		if payload["license_key"] != validKey() {
			t.Errorf("license_key = %v", payload["license_key"])
		}
		json.NewEncoder(w).Encode(map[string]any{"valid": true, "tier": "professional"})
	}))
	defer srv.Close()

	v := New(validKey(), WithEndpoint(srv.URL), WithCacheDir(t.TempDir()))
	verification, err := v.Verify(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !verification.Valid || verification.Tier != TierProfessional {
		t.Fatalf("verification = %+v", verification)
	}
	if !v.Valid() {
		t.Fatal("Valid() = false after successful verification")
	}
	if v.Tier() != TierProfessional {
		t.Fatalf("Tier() = %v", v.Tier())
	}
}

func TestVerifyCachesForAnHour(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"valid": true, "tier": "community"})
	}))
	defer srv.Close()

	now := time.Now()
	v := New(validKey(),
		WithEndpoint(srv.URL),
		WithCacheDir(t.TempDir()),
		WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		if _, err := v.Verify(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Fatalf("service called %d times, want 1", calls)
	}

	now = now.Add(2 * time.Hour)
	if _, err := v.Verify(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("service called %d times after ttl, want 2", calls)
	}
}

func TestVerifyOfflineGraceFromDisk(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"valid": true, "tier": "enterprise"})
	}))

	now := time.Now()
	clock := func() time.Time { return now }
	v := New(validKey(), WithEndpoint(srv.URL), WithCacheDir(dir), WithClock(clock))
	if _, err := v.Verify(context.Background()); err != nil {
		t.Fatal(err)
	}
	srv.Close()

	// A fresh validator with the service down falls back to the persisted
	// verdict once the cached one ages out.
	now = now.Add(2 * time.Hour)
	offline := New(validKey(), WithEndpoint(srv.URL), WithCacheDir(dir), WithClock(clock))
	verification, err := offline.Verify(context.Background())
	if err != nil {
		t.Fatalf("offline grace failed: %v", err)
	}
	if verification.Tier != TierEnterprise {
		t.Fatalf("tier = %v", verification.Tier)
	}
}

func TestVerifyUnreachableWithoutCache(t *testing.T) {
	v := New(validKey(),
		WithEndpoint("http://127.0.0.1:1/license"),
		WithCacheDir(t.TempDir()),
		WithHTTPClient(&http.Client{Timeout: 200 * time.Millisecond}))
	_, err := v.Verify(context.Background())
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestVerifyRejectsMalformedKeyBeforeGoingOnline(t *testing.T) {
	v := New("TUSK-BAD", WithEndpoint("http://127.0.0.1:1/license"))
	if _, err := v.Verify(context.Background()); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("err = %v", err)
	}
}

func TestValidWithExpiredVerification(t *testing.T) {
	now := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"valid":      true,
			"tier":       "professional",
			"expires_at": now.Add(time.Minute).Format(time.RFC3339),
		})
	}))
	defer srv.Close()

	v := New(validKey(),
		WithEndpoint(srv.URL),
		WithCacheDir(t.TempDir()),
		WithClock(func() time.Time { return now }))
	if _, err := v.Verify(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !v.Valid() {
		t.Fatal("Valid() = false before expiry")
	}

	now = now.Add(time.Hour)
	if v.Valid() {
		t.Fatal("Valid() = true after expiry")
	}
}

func TestAllowsInheritsLowerTiers(t *testing.T) {
	v := New(validKey())
	// Unverified keys default to community.
	if !v.Allows("parse") {
		t.Error("community feature denied")
	}
	if v.Allows("binary") {
		t.Error("professional feature allowed at community tier")
	}
}

func TestTierFeatures(t *testing.T) {
	community := TierFeatures(TierCommunity)
	if !reflect.DeepEqual(community, tierFeatures[TierCommunity]) {
		t.Fatalf("community features = %v", community)
	}
	pro := TierFeatures(TierProfessional)
	if len(pro) != len(community)+len(tierFeatures[TierProfessional]) {
		t.Fatalf("professional features = %v", pro)
	}
}

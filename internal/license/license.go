// Package license implements TuskLang license key validation: offline
// checksum validation, online verification against the license service
// with a one-hour cache, and an offline grace period backed by the last
// verification persisted on disk.
package license

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultEndpoint is the license verification service.
const DefaultEndpoint = "https://api.tusklang.org/v1/license"

// verificationTTL is how long an online verdict is trusted before the
// service is asked again.
const verificationTTL = time.Hour

// ErrInvalidKey reports a malformed or checksum-failing license key.
var ErrInvalidKey = errors.New("license: invalid key")

// ErrUnreachable reports that online verification could not complete and
// no cached verdict was available.
var ErrUnreachable = errors.New("license: verification service unreachable")

var keyPattern = regexp.MustCompile(`^TUSK-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// Tier is a license tier. Tiers are ordered; a higher tier includes every
// lower tier's features.
type Tier string

const (
	TierCommunity    Tier = "community"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
	TierUltimate     Tier = "ultimate"
)

// tierFeatures maps each tier to the feature groups it unlocks.
var tierFeatures = map[Tier][]string{
	TierCommunity:    {"parse", "validate", "convert", "basic-operators"},
	TierProfessional: {"binary", "fujsen", "database", "serve"},
	TierEnterprise:   {"ai", "kubernetes", "s3", "etcd", "audit"},
	TierUltimate:     {"unlimited"},
}

var tierOrder = []Tier{TierCommunity, TierProfessional, TierEnterprise, TierUltimate}

// TierFeatures returns every feature available at the given tier,
// including those inherited from lower tiers.
func TierFeatures(tier Tier) []string {
	var out []string
	for _, t := range tierOrder {
		out = append(out, tierFeatures[t]...)
		if t == tier {
			break
		}
	}
	return out
}

// Verification is the persisted result of an online check.
type Verification struct {
	Key       string    `json:"license_key"`
	Valid     bool      `json:"valid"`
	Tier      Tier      `json:"tier"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Validator performs offline and online license checks.
type Validator struct {
	mu       sync.Mutex
	key      string
	endpoint string
	client   *http.Client
	clock    func() time.Time
	cacheDir string
	clientID string
	sign     func(string) string

	last *Verification
}

// Option configures a Validator.
type Option func(*Validator)

// WithEndpoint overrides the verification service URL.
func WithEndpoint(url string) Option {
	return func(v *Validator) { v.endpoint = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Validator) { v.client = c }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(v *Validator) { v.clock = clock }
}

// WithCacheDir overrides the directory holding license.json (~/.tsk by
// default).
func WithCacheDir(dir string) Option {
	return func(v *Validator) { v.cacheDir = dir }
}

// WithSigner sets the payload signing function (the protection module's
// Sign in production wiring).
func WithSigner(sign func(string) string) Option {
	return func(v *Validator) { v.sign = sign }
}

// New creates a validator for the given key.
func New(key string, opts ...Option) *Validator {
	v := &Validator{
		key:      strings.ToUpper(strings.TrimSpace(key)),
		endpoint: DefaultEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		clock:    time.Now,
		clientID: ulid.Make().String(),
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.cacheDir = filepath.Join(home, ".tsk")
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// GenerateKey builds a well-formed key from three payload groups, filling
// the final group with the checksum.
func GenerateKey(g1, g2, g3 string) string {
	prefix := fmt.Sprintf("TUSK-%s-%s-%s", strings.ToUpper(g1), strings.ToUpper(g2), strings.ToUpper(g3))
	return prefix + "-" + Checksum(prefix)
}

// Checksum returns the checksum group for the key prefix: the first four
// hex characters of sha256(prefix), uppercased.
func Checksum(prefix string) string {
	sum := sha256.Sum256([]byte(prefix))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:4])
}

// ValidateFormat checks the key's shape and checksum group without going
// online.
func (v *Validator) ValidateFormat() error {
	if !keyPattern.MatchString(v.key) {
		return fmt.Errorf("%w: expected TUSK-XXXX-XXXX-XXXX-XXXX", ErrInvalidKey)
	}
	i := strings.LastIndex(v.key, "-")
	prefix, check := v.key[:i], v.key[i+1:]
	if Checksum(prefix) != check {
		return fmt.Errorf("%w: checksum mismatch", ErrInvalidKey)
	}
	return nil
}

// Verify validates the key, consulting the online service when the cached
// verdict is older than an hour. When the service is unreachable, a
// previously persisted verification keeps the license usable offline.
func (v *Validator) Verify(ctx context.Context) (*Verification, error) {
	if err := v.ValidateFormat(); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.clock()
	if v.last == nil {
		v.last = v.loadCached()
	}
	if v.last != nil && v.last.Key == v.key && now.Sub(v.last.CheckedAt) < verificationTTL {
		return v.last, nil
	}

	verification, err := v.verifyOnline(ctx, now)
	if err != nil {
		// Offline grace: fall back to any persisted verdict for this key.
		if v.last != nil && v.last.Key == v.key {
			return v.last, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	v.last = verification
	v.storeCached(verification)
	return verification, nil
}

func (v *Validator) verifyOnline(ctx context.Context, now time.Time) (*Verification, error) {
	payload := map[string]any{
		"license_key": v.key,
		"timestamp":   now.Unix(),
		"client_id":   v.clientID,
		"version":     "2.0",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if v.sign != nil {
		req.Header.Set("X-Signature", v.sign(string(body)))
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result struct {
		Valid     bool   `json:"valid"`
		Tier      Tier   `json:"tier"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	verification := &Verification{
		Key:       v.key,
		Valid:     result.Valid,
		Tier:      result.Tier,
		CheckedAt: now,
	}
	if result.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, result.ExpiresAt); err == nil {
			verification.ExpiresAt = t
		}
	}
	return verification, nil
}

func (v *Validator) cachePath() string {
	if v.cacheDir == "" {
		return ""
	}
	return filepath.Join(v.cacheDir, "license.json")
}

func (v *Validator) loadCached() *Verification {
	path := v.cachePath()
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var verification Verification
	if err := json.Unmarshal(data, &verification); err != nil {
		return nil
	}
	return &verification
}

func (v *Validator) storeCached(verification *Verification) {
	path := v.cachePath()
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	data, err := json.MarshalIndent(verification, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o600)
}

// Valid reports whether the key passed its most recent verification. Keys
// that have never verified online are valid when their format checks out;
// the operators gate features, not parsing.
func (v *Validator) Valid() bool {
	if v.ValidateFormat() != nil {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.last == nil {
		v.last = v.loadCached()
	}
	if v.last == nil || v.last.Key != v.key {
		return true
	}
	if !v.last.ExpiresAt.IsZero() && v.clock().After(v.last.ExpiresAt) {
		return false
	}
	return v.last.Valid
}

// Tier returns the verified tier, defaulting to community.
func (v *Validator) Tier() Tier {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.last != nil && v.last.Valid {
		return v.last.Tier
	}
	return TierCommunity
}

// Allows reports whether the active tier unlocks the named feature.
func (v *Validator) Allows(feature string) bool {
	tier := v.Tier()
	for _, t := range tierOrder {
		for _, f := range tierFeatures[t] {
			if f == feature || f == "unlimited" {
				return true
			}
		}
		if t == tier {
			break
		}
	}
	return false
}

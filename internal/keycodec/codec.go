package keycodec

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

type Tier string

const (
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

var (
	ErrBadFormat   = fmt.Errorf("invalid key format")
	ErrUnknownTier = fmt.Errorf("unknown tier")
)

// Key shape: AAAA-BBBB-MMMM-SSSS
// Groups 1-2 random, group 3 carries tier/duration/month metadata,
// group 4 is an HMAC-SHA256 prefix over groups 1-3.
var keyShape = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-F0-9]{4}$`)

const randomCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DurationBuckets are the supported validity lengths in days. 0 = lifetime.
var DurationBuckets = []int{0, 3, 7, 14, 30, 90, 180, 365}

var tierChars = map[Tier]byte{
	TierPro:        'P',
	TierEnterprise: 'E',
}

var bucketChars = map[int]byte{
	0:   'X',
	3:   'A',
	7:   'B',
	14:  'C',
	30:  'D',
	90:  'E',
	180: 'F',
	365: 'G',
}

// Result is the outcome of verifying a key string.
type Result struct {
	Valid        bool
	Tier         Tier
	DurationDays int
	Reason       string
}

// SecretProvider yields the HMAC secrets a codec may sign and verify with.
// Secrets returns the current secret first; older secrets are accepted for
// verification only, so a key minted before a rotation still validates.
type SecretProvider interface {
	Secrets() [][]byte
}

type staticSecret struct{ secret []byte }

func (s staticSecret) Secrets() [][]byte { return [][]byte{s.secret} }

// StaticSecret wraps a fixed secret for tests and offline tooling.
func StaticSecret(secret []byte) SecretProvider {
	return staticSecret{secret: secret}
}

type Codec struct {
	secrets SecretProvider
	now     func() time.Time
}

func New(secrets SecretProvider) *Codec {
	return &Codec{secrets: secrets, now: time.Now}
}

// CheckFormat rejects strings that do not match the four-group shape.
// Cheaper than Verify; no crypto involved.
func CheckFormat(key string) error {
	if !keyShape.MatchString(key) {
		return ErrBadFormat
	}
	return nil
}

// BucketFor maps a requested duration to its configured bucket: the largest
// bucket that does not exceed the request. Requests below the smallest
// positive bucket round up to it; 0 stays 0 (lifetime).
func BucketFor(days int) int {
	if days <= 0 {
		return 0
	}
	best := 3
	for _, b := range DurationBuckets {
		if b > 0 && b <= days {
			best = b
		}
	}
	return best
}

// Generate mints a signed key for the given tier and duration.
func (c *Codec) Generate(tier Tier, durationDays int) (string, error) {
	tc, ok := tierChars[tier]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	bucket := BucketFor(durationDays)
	bc := bucketChars[bucket]
	mc := byte('A' + int(c.now().UTC().Month()) - 1)

	g1, err := randomGroup(4)
	if err != nil {
		return "", err
	}
	g2, err := randomGroup(4)
	if err != nil {
		return "", err
	}
	filler, err := randomGroup(1)
	if err != nil {
		return "", err
	}

	meta := string([]byte{tc, bc, mc}) + filler
	payload := g1 + "-" + g2 + "-" + meta

	secrets := c.secrets.Secrets()
	if len(secrets) == 0 {
		return "", fmt.Errorf("no signing secret configured")
	}
	return payload + "-" + signature(payload, secrets[0]), nil
}

// Verify checks the shape and signature of a key and decodes its metadata.
// Side-effect free.
func (c *Codec) Verify(key string) Result {
	if err := CheckFormat(key); err != nil {
		return Result{Reason: "invalid key format"}
	}

	groups := strings.Split(key, "-")
	payload := groups[0] + "-" + groups[1] + "-" + groups[2]

	ok := false
	for _, secret := range c.secrets.Secrets() {
		if hmac.Equal([]byte(signature(payload, secret)), []byte(groups[3])) {
			ok = true
			break
		}
	}
	if !ok {
		return Result{Reason: "invalid signature"}
	}

	meta := groups[2]
	tier, ok := tierFromChar(meta[0])
	if !ok {
		return Result{Reason: "invalid tier"}
	}
	days, ok := bucketFromChar(meta[1])
	if !ok {
		return Result{Reason: "invalid duration"}
	}

	return Result{Valid: true, Tier: tier, DurationDays: days}
}

func signature(payload string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	sum := mac.Sum(nil)
	return strings.ToUpper(hex.EncodeToString(sum[:2]))
}

func tierFromChar(ch byte) (Tier, bool) {
	for t, c := range tierChars {
		if c == ch {
			return t, true
		}
	}
	return "", false
}

func bucketFromChar(ch byte) (int, bool) {
	for d, c := range bucketChars {
		if c == ch {
			return d, true
		}
	}
	return 0, false
}

func randomGroup(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = randomCharset[int(b)%len(randomCharset)]
	}
	return string(out), nil
}

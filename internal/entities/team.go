// Package entities contains core business entities.
package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Team owns agents, members and API keys.
type Team struct {
	ID        string
	Name      string
	Active    bool
	Members   []Member
	CreatedAt time.Time
}

// APIKey is a hashed team credential.
type APIKey struct {
	ID        string
	TeamID    string
	Name      string
	Hash      string
	Prefix    string
	CreatedAt time.Time
	RevokedAt *time.Time
}

// HashAPIKey returns the stored form of a plaintext key.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix is the displayable head of a plaintext key.
func KeyPrefix(plaintext string) string {
	if len(plaintext) <= 8 {
		return plaintext
	}
	return plaintext[:8]
}

// IssuedKey carries the plaintext of a freshly issued key.
type IssuedKey struct {
	Key       APIKey
	Plaintext string
}

// Principal is the authenticated caller of a request.
type Principal struct {
	TeamID string
	KeyID  string
	Admin  bool
}

// CanAccessTeam reports whether the principal may act on teamID.
func (p *Principal) CanAccessTeam(teamID string) bool {
	if p == nil {
		return false
	}
	return p.Admin || p.TeamID == teamID
}

// DeactivateResult contains info about bulk deactivation outcome.
type DeactivateResult struct {
	RevokedKeys     int `json:"revoked_keys"`
	DisabledMembers int `json:"disabled_members"`
}

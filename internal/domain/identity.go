package domain

import (
	"time"
)

const (
	IdentityTypeAPIKey         = "api_key"
	IdentityTypeUser           = "user"
	IdentityTypeNetworkAddress = "network_address"

	EndpointClassGeneration = "generation"
	EndpointClassStatus     = "status"
	EndpointClassAdmin      = "admin"

	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"

	BlockSeverityLow      = "low"
	BlockSeverityMedium   = "medium"
	BlockSeverityHigh     = "high"
	BlockSeverityCritical = "critical"
)

// Identity is the resolved caller reference used as the rate-limiting and
// blocking key. It is immutable per request and never persisted beyond logs.
type Identity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (i Identity) Key() string { return i.Type + ":" + i.Value }

// Multiplier scales the tier point budget by identity confidence:
// a verified API key is the least likely abuse vector, a bare network
// address the most likely.
func (i Identity) Multiplier() int {
	switch i.Type {
	case IdentityTypeAPIKey:
		return 3
	case IdentityTypeUser:
		return 2
	default:
		return 1
	}
}

type BlockRecord struct {
	Reason    string    `json:"reason"`
	Severity  string    `json:"severity"`
	BlockedAt time.Time `json:"blocked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BlockTTL maps abuse severity onto an escalating block duration.
func BlockTTL(severity string) time.Duration {
	switch severity {
	case BlockSeverityMedium:
		return time.Hour
	case BlockSeverityHigh:
		return 24 * time.Hour
	case BlockSeverityCritical:
		return 7 * 24 * time.Hour
	default:
		return 15 * time.Minute
	}
}

func IsValidBlockSeverity(v string) bool {
	switch v {
	case BlockSeverityLow, BlockSeverityMedium, BlockSeverityHigh, BlockSeverityCritical:
		return true
	default:
		return false
	}
}

func IsValidEndpointClass(v string) bool {
	switch v {
	case EndpointClassGeneration, EndpointClassStatus, EndpointClassAdmin:
		return true
	default:
		return false
	}
}

// AdmissionDecision is the outcome of one admission evaluation; the http
// adapter turns it into X-RateLimit-* response metadata.
type AdmissionDecision struct {
	Allowed       bool      `json:"allowed"`
	Limit         int64     `json:"limit"`
	Remaining     int64     `json:"remaining"`
	ResetAt       time.Time `json:"reset_at"`
	EndpointClass string    `json:"endpoint_class"`
	IdentityType  string    `json:"identity_type"`
	DenyCode      string    `json:"deny_code,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	BlockedUntil  time.Time `json:"blocked_until,omitempty"`
}

const (
	DenyCodeRateLimit = "RATE_LIMIT_EXCEEDED"
	DenyCodeBlocked   = "ACCESS_BLOCKED"
)

package redis

import "strings"

const defaultNamespace = "ff"

const (
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	lockPrefix        = "lock"
	revokedPrefix     = "revoked_token"
)

// Keyspace builds namespaced keys so several environments can share one
// Redis instance. The zero value uses the "ff" namespace.
type Keyspace struct {
	namespace string
}

func NewKeyspace(namespace string) Keyspace {
	return Keyspace{namespace: strings.Trim(strings.TrimSpace(namespace), ":")}
}

func (k Keyspace) IdempotencyKey(scope, id string) string {
	return k.key(idempotencyPrefix, scope, id)
}

func (k Keyspace) RateLimitKey(scope string) string {
	return k.key(rateLimitPrefix, scope)
}

// PhaseLockKey guards mutations of one campaign phase.
func (k Keyspace) PhaseLockKey(phaseID string) string {
	return k.key(lockPrefix, "phase", phaseID)
}

// CampaignLockKey guards fund resolution of one campaign.
func (k Keyspace) CampaignLockKey(campaignID string) string {
	return k.key(lockPrefix, "campaign", campaignID)
}

// CronLockKey is the single-runner lock of the cron worker for an environment.
func (k Keyspace) CronLockKey(env string) string {
	return k.key(lockPrefix, "cron", env)
}

func (k Keyspace) RevokedTokenKey(jti string) string {
	return k.key(revokedPrefix, jti)
}

func (k Keyspace) key(parts ...string) string {
	ns := k.namespace
	if ns == "" {
		ns = defaultNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

package domain

import (
	"fmt"
	"time"
)

// RateLimitRule - окно с фиксированным лимитом для одного ключа
type RateLimitRule struct {
	Scope  string
	Key    string
	Limit  int
	Window time.Duration
}

const (
	RateLimitScopeSend    = "send"
	RateLimitScopeAdminIP = "admin_ip"
)

func (r RateLimitRule) CounterKey() string {
	return fmt.Sprintf("ratelimit:%s:%s", r.Scope, r.Key)
}

// Enabled - лимит <= 0 отключает проверку
func (r RateLimitRule) Enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionProgressKey returns the cache key holding a session's progress snapshot
func (r *CacheKeyStruct) SessionProgressKey(sessionID string) string {
	return fmt.Sprintf("session:%s:progress", sessionID)
}

// SessionResultKey returns the cache key holding a session's graded result payload
func (r *CacheKeyStruct) SessionResultKey(sessionID string) string {
	return fmt.Sprintf("session:%s:result", sessionID)
}

var CacheKey = NewCacheKeyStruct()

package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// DocumentKey returns the cache key for a single cached reference document
func (r *CacheKeyStruct) DocumentKey(collection, id string) string {
	return fmt.Sprintf("doc:%s:%s", collection, id)
}

// CollectionKey returns the cache key holding a full listing of a reference collection
func (r *CacheKeyStruct) CollectionKey(collection string) string {
	return fmt.Sprintf("docs:%s:all", collection)
}

// AttemptLockKey returns the lock key guarding attempt lookup-before-create
func (r *CacheKeyStruct) AttemptLockKey(examID, studentID string) string {
	return fmt.Sprintf("student:%s:exam:%s:attempt_lock", studentID, examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()

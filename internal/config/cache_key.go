package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// LearnerSessionKey holds the JTI of the learner's single active login.
func (r *CacheKeyStruct) LearnerSessionKey(learnerID int) string {
	return fmt.Sprintf("login:%d", learnerID)
}

// AssessmentPayloadKey holds the learner-facing assessment JSON (no answer key).
func (r *CacheKeyStruct) AssessmentPayloadKey(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:payload", assessmentID)
}

// AssessmentAnswerKey is a hash of question_id -> canonical correct answer.
func (r *CacheKeyStruct) AssessmentAnswerKey(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:key", assessmentID)
}

// AttemptFinalizedKey guards the finalize call of one attempt.
func (r *CacheKeyStruct) AttemptFinalizedKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:finalized", attemptID)
}

// LearnerActiveAttemptKey points at the attempt a learner currently has open.
func (r *CacheKeyStruct) LearnerActiveAttemptKey(learnerID int, assessmentID string) string {
	return fmt.Sprintf("learner:%d:assessment:%s:active_attempt", learnerID, assessmentID)
}

// AssessmentLiveKey is a hash of learner_id -> live attempt JSON for the proctor view.
func (r *CacheKeyStruct) AssessmentLiveKey(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:live", assessmentID)
}

// AssessmentMonitorChannel is the Redis Pub/Sub channel for the live proctor view.
func (r *CacheKeyStruct) AssessmentMonitorChannel(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:monitor", assessmentID)
}

var CacheKey = NewCacheKeyStruct()

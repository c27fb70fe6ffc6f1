package config

import "fmt"

// StoreKeyStruct builds the per-attempt persistence keys. The four suffixes
// are a format contract: a reload within the same attempt must find the same
// keys, so they never change between releases.
type StoreKeyStruct struct{}

func NewStoreKeyStruct() *StoreKeyStruct {
	return &StoreKeyStruct{}
}

// AttemptAnswersKey returns the key for an attempt's serialized answer map.
func (r *StoreKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s_ans", attemptID)
}

// AttemptReviewKey returns the key for an attempt's review-flag map.
func (r *StoreKeyStruct) AttemptReviewKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s_rev", attemptID)
}

// AttemptTimeSpentKey returns the key for an attempt's time-spent map.
func (r *StoreKeyStruct) AttemptTimeSpentKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s_time", attemptID)
}

// AttemptStartKey returns the key for an attempt's start timestamp.
// The value is stamped exactly once per attempt and anchors every
// remaining-time derivation until the attempt completes.
func (r *StoreKeyStruct) AttemptStartKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s_start", attemptID)
}

var StoreKey = NewStoreKeyStruct()

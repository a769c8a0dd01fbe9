package mocks

import (
	"fmt"
	"sync"

	"github.com/mcoot/arenaengine/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing
type MockRandom struct {
	mu sync.Mutex

	// IntnResults is a queue of results to return from Intn
	IntnResults []int
	intnIndex   int

	// Int63Results is a queue of results to return from Int63
	Int63Results []int64
	int63Index   int

	// StringResults is a queue of results to return from String
	StringResults []string
	stringIndex   int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Intn returns the next queued result, or 0 if none remaining
func (r *MockRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.intnIndex >= len(r.IntnResults) {
		return 0
	}
	result := r.IntnResults[r.intnIndex]
	r.intnIndex++
	return result
}

// Int63 returns the next queued result, or 1 if none remaining
func (r *MockRandom) Int63() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.int63Index >= len(r.Int63Results) {
		return 1
	}
	result := r.Int63Results[r.int63Index]
	r.int63Index++
	return result
}

// String returns the next queued result. When the queue is empty it falls back
// to a counter so generated identifiers stay unique within a test.
func (r *MockRandom) String(length int, alphabet string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stringIndex >= len(r.StringResults) {
		r.stringIndex++
		return fmt.Sprintf("MOCK%0*d", max(length-4, 1), r.stringIndex)
	}
	result := r.StringResults[r.stringIndex]
	r.stringIndex++
	return result
}

// QueueInt63 adds values to the Int63 result queue
func (r *MockRandom) QueueInt63(values ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Int63Results = append(r.Int63Results, values...)
}

// QueueString adds values to the String result queue
func (r *MockRandom) QueueString(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StringResults = append(r.StringResults, values...)
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.IntnResults = nil
	r.intnIndex = 0
	r.Int63Results = nil
	r.int63Index = 0
	r.StringResults = nil
	r.stringIndex = 0
}

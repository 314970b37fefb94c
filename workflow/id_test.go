package workflow

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	now := time.Date(2024, 1, 31, 15, 4, 5, 0, time.UTC)
	id := NewID(now)

	assert.Regexp(t, regexp.MustCompile(`^WF-20240131-[0-9A-F]{8}$`), id)
}

func TestNewIDUnique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID(now)
		assert.False(t, seen[id], "duplicate workflow id %s", id)
		seen[id] = true
	}
}

func TestNewBuildID(t *testing.T) {
	now := time.Unix(1706687999, 0)
	assert.Regexp(t, regexp.MustCompile(`^BUILD-1706687999-[0-9A-F]{8}$`), NewBuildID(now))
}

func TestNewJenkinsBuildID(t *testing.T) {
	now := time.Unix(1706687999, 0)
	assert.Regexp(t, regexp.MustCompile(`^JBUILD-1706687999-[0-9A-F]{8}$`), NewJenkinsBuildID(now))
}

func TestTimestamp(t *testing.T) {
	now := time.Date(2024, 1, 31, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "2024-01-31 15:04:05", Timestamp(now))
}

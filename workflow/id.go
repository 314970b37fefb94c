package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeLayout is the human-readable timestamp layout stored alongside unix
// timestamps in every table.
const TimeLayout = "2006-01-02 15:04:05"

// Timestamp formats t in the human-readable storage layout.
func Timestamp(t time.Time) string {
	return t.Format(TimeLayout)
}

// NewID generates a workflow ID such as WF-20240131-3F2B9C01.
func NewID(now time.Time) string {
	return fmt.Sprintf("WF-%s-%s", now.Format("20060102"), shortUUID())
}

// NewBuildID generates an SSO build tracking ID such as BUILD-1706687999-3F2B9C01.
func NewBuildID(now time.Time) string {
	return fmt.Sprintf("BUILD-%d-%s", now.Unix(), shortUUID())
}

// NewJenkinsBuildID generates a Jenkins build tracking ID such as
// JBUILD-1706687999-3F2B9C01. The prefix keeps the two build ID spaces
// distinguishable in logs and queries.
func NewJenkinsBuildID(now time.Time) string {
	return fmt.Sprintf("JBUILD-%d-%s", now.Unix(), shortUUID())
}

func shortUUID() string {
	return strings.ToUpper(uuid.New().String()[:8])
}

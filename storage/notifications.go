package storage

import (
	"context"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"

	"github.com/ebops/deploybot/workflow"
)

// PendingBuild is a terminal build whose completion notice has not been
// sent. Exactly one of SSO or Jenkins is set.
type PendingBuild struct {
	SSO     *workflow.SSOBuild
	Jenkins *workflow.JenkinsBuild
}

// EndTime returns the unix end time of the underlying build, or 0 when the
// build never recorded one.
func (p PendingBuild) EndTime() int64 {
	switch {
	case p.SSO != nil && p.SSO.BuildEndTime != nil:
		return *p.SSO.BuildEndTime
	case p.Jenkins != nil && p.Jenkins.BuildEndTime != nil:
		return *p.Jenkins.BuildEndTime
	default:
		return 0
	}
}

// WorkflowID returns the originating workflow of the underlying build.
func (p PendingBuild) WorkflowID() string {
	if p.SSO != nil {
		return p.SSO.WorkflowID
	}
	if p.Jenkins != nil {
		return p.Jenkins.WorkflowID
	}
	return ""
}

// PendingNotifications returns settled, unnotified builds from both build
// tables, oldest completion first, capped at limit per table. The boot sweep
// uses it to deliver notices whose pollers died with a previous process.
func (s *Store) PendingNotifications(ctx context.Context, limit int) ([]PendingBuild, error) {
	if limit <= 0 {
		limit = 100
	}

	pending := make([]PendingBuild, 0, limit)

	ssoQuery, ssoArgs, err := sq.Select(ssoBuildColumns...).
		From("sso_build_status").
		Where(sq.Eq{
			"build_status": []string{"SUCCESS", "FAILURE", "ABORTED", "TIMEOUT", "ERROR"},
			"notified":     0,
		}).
		OrderBy("build_end_time ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sso pending select: %w", err)
	}
	var ssoBuilds []*workflow.SSOBuild
	if err := s.db.SelectContext(ctx, &ssoBuilds, ssoQuery, ssoArgs...); err != nil {
		return nil, fmt.Errorf("list pending sso notifications: %w", err)
	}
	for _, b := range ssoBuilds {
		pending = append(pending, PendingBuild{SSO: b})
	}

	jenkinsQuery, jenkinsArgs, err := sq.Select(jenkinsBuildColumns...).
		From("jenkins_builds").
		Where(sq.Eq{
			"build_status": []string{"SUCCESS", "FAILURE", "ABORTED", "UNSTABLE", "TIMEOUT", "ERROR"},
			"notified":     0,
		}).
		OrderBy("build_end_time ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build jenkins pending select: %w", err)
	}
	var jenkinsBuilds []*workflow.JenkinsBuild
	if err := s.db.SelectContext(ctx, &jenkinsBuilds, jenkinsQuery, jenkinsArgs...); err != nil {
		return nil, fmt.Errorf("list pending jenkins notifications: %w", err)
	}
	for _, b := range jenkinsBuilds {
		pending = append(pending, PendingBuild{Jenkins: b})
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].EndTime() < pending[j].EndTime()
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

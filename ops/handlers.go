package ops

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ebops/deploybot/config"
	"github.com/ebops/deploybot/storage"
	"github.com/ebops/deploybot/workflow"
)

// maxListLimit caps one listing response; operators wanting more should use
// the database directly.
const maxListLimit = 200

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ready(c *gin.Context) {
	if _, err := s.options.Load(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) listWorkflows(c *gin.Context) {
	status := workflow.Status(c.Query("status"))
	if status != "" && !status.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + status.String()})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > maxListLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and 200"})
		return
	}

	workflows, err := s.store.ListWorkflows(c.Request.Context(), status, limit)
	if err != nil {
		s.fail(c, "list workflows", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workflows": workflows, "count": len(workflows)})
}

func (s *Server) getWorkflow(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	wf, err := s.store.GetWorkflow(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
		return
	}
	if err != nil {
		s.fail(c, "get workflow", err)
		return
	}

	detail := gin.H{"workflow": wf}

	submission, err := s.store.GetSSOSubmissionByWorkflow(ctx, id)
	switch {
	case err == nil:
		detail["sso_submission"] = submission
	case !errors.Is(err, storage.ErrNotFound):
		s.fail(c, "get sso submission", err)
		return
	}

	ssoBuilds, err := s.store.GetSSOBuildsByWorkflow(ctx, id)
	if err != nil {
		s.fail(c, "list sso builds", err)
		return
	}
	detail["sso_builds"] = ssoBuilds

	jenkinsBuilds, err := s.store.GetJenkinsBuildsByWorkflow(ctx, id)
	if err != nil {
		s.fail(c, "list jenkins builds", err)
		return
	}
	detail["jenkins_builds"] = jenkinsBuilds

	c.JSON(http.StatusOK, detail)
}

func (s *Server) getOptions(c *gin.Context) {
	opts, err := s.options.Load(c.Request.Context())
	if err != nil {
		s.fail(c, "load options", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": redactProjects(opts)})
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	s.logger.Error(op+" failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

const redacted = "***"

// redactProjects deep-copies the secret-bearing blocks so the cached options
// snapshot is never mutated.
func redactProjects(opts *config.Options) map[string]*config.Project {
	out := make(map[string]*config.Project, len(opts.Projects))
	for name, p := range opts.Projects {
		cp := *p
		if cp.Jenkins != nil {
			j := *cp.Jenkins
			if j.APIToken != "" {
				j.APIToken = redacted
			}
			cp.Jenkins = &j
		}
		if cp.Proxy != nil {
			pr := *cp.Proxy
			if pr.Password != "" {
				pr.Password = redacted
			}
			cp.Proxy = &pr
		}
		out[name] = &cp
	}
	return out
}

// Package approval is the hub between the submission form, the reviewers,
// and the release systems. It posts freshly submitted workflows to their
// approval groups and resolves approve/reject button clicks into recorded
// decisions, the SSO and Jenkins fan-outs, and the closing notifications.
package approval

import (
	"context"
	"log/slog"

	"github.com/ebops/deploybot/chat"
	"github.com/ebops/deploybot/config"
	"github.com/ebops/deploybot/workflow"
)

// Store is the workflow persistence the dispatcher needs. It extends the
// state-machine store with creation, rollback, and message-map writes.
type Store interface {
	workflow.Store
	CreateWorkflow(ctx context.Context, userID int64, username, submissionData, project string, templateType workflow.TemplateType) (*workflow.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
	AttachGroupMessages(ctx context.Context, id string, messages workflow.GroupMessages) error
	DeleteWorkflow(ctx context.Context, id string) error
}

// Notifier is the chat side of the workflow lifecycle.
type Notifier interface {
	PostApprovalRequests(ctx context.Context, wf *workflow.Workflow, groupIDs []int64) (workflow.GroupMessages, error)
	EditApprovalMessages(ctx context.Context, wf *workflow.Workflow)
	NotifySubmitter(ctx context.Context, wf *workflow.Workflow)
}

// Orchestrator runs one release system's fan-out for an approved workflow.
// Implementations return once their background pollers are spawned.
type Orchestrator interface {
	Run(ctx context.Context, wf *workflow.Workflow)
}

// Syncer pushes decided workflows to the external API.
type Syncer interface {
	Push(ctx context.Context, wf *workflow.Workflow) bool
}

// OptionsLoader yields the current project options document.
type OptionsLoader interface {
	Load(ctx context.Context) (*config.Options, error)
}

// Deps are the collaborators a Dispatcher coordinates.
type Deps struct {
	Store     Store
	Notifier  Notifier
	Options   OptionsLoader
	Syncer    Syncer
	SSO       Orchestrator
	Jenkins   Orchestrator
	Transport chat.Transport
	Config    *config.App
	Logger    *slog.Logger
}

// Dispatcher owns the approval lifecycle between submission and fan-out.
type Dispatcher struct {
	store     Store
	machine   *workflow.Machine
	notifier  Notifier
	options   OptionsLoader
	syncer    Syncer
	sso       Orchestrator
	jenkins   Orchestrator
	transport chat.Transport
	cfg       *config.App
	logger    *slog.Logger
}

// New builds a Dispatcher. A nil Logger falls back to slog.Default.
func New(deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:     deps.Store,
		machine:   workflow.NewMachine(deps.Store),
		notifier:  deps.Notifier,
		options:   deps.Options,
		syncer:    deps.Syncer,
		sso:       deps.SSO,
		jenkins:   deps.Jenkins,
		transport: deps.Transport,
		cfg:       deps.Config,
		logger:    logger.With("component", "approval"),
	}
}

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Options is the project options document, stored as one JSON blob in the
// store and originally authored at config/options.json.
type Options struct {
	Projects map[string]*Project `json:"projects" validate:"required,min=1,dive,required"`

	// names preserves the document order of the projects object so chat
	// keyboards list projects the way the operator wrote them.
	names []string
}

// Project configures one deployable project.
type Project struct {
	// Command is the chat command that opens this project's form, with or
	// without the leading slash.
	Command      string         `json:"command" validate:"required"`
	Environments []string       `json:"environments" validate:"required,min=1"`
	Services     ServiceCatalog `json:"services"`
	// GroupIDs are the chat groups that receive approval requests.
	GroupIDs GroupIDList `json:"group_ids" validate:"required,min=1"`
	// AddressOnly switches the form and templates to the address-request
	// variant.
	AddressOnly  bool     `json:"address_only"`
	OpsUsernames []string `json:"ops_usernames"`
	// DefaultBranch may be a single branch name or an environment→branch map.
	DefaultBranch BranchSetting    `json:"default_branch"`
	Jenkins       *JenkinsSettings `json:"jenkins"`
	Proxy         *ProxySettings   `json:"proxy"`
}

// JenkinsSettings configures the Jenkins integration, either globally from
// app config or per project from the options document.
type JenkinsSettings struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url"`
	Username string `json:"username"`
	APIToken string `json:"api_token"`
	// MaxConcurrent bounds simultaneous build triggers for the project.
	// Values below 1 are clamped to 1 by the limiter.
	MaxConcurrent int `json:"max_concurrent"`
}

// Valid reports whether the settings are complete enough to trigger builds.
// The username is optional: token-only auth sends the token as both basic
// auth fields.
func (j *JenkinsSettings) Valid() bool {
	return j != nil && j.Enabled && j.URL != "" && j.APIToken != ""
}

// ParseOptions decodes and validates an options document.
func ParseOptions(doc []byte) (*Options, error) {
	var opts Options
	if err := json.Unmarshal(doc, &opts); err != nil {
		return nil, fmt.Errorf("parse options document: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// EmptyOptions returns an options document with no projects, used when the
// store has never been seeded.
func EmptyOptions() *Options {
	return &Options{Projects: map[string]*Project{}}
}

func (o *Options) UnmarshalJSON(data []byte) error {
	type plain Options
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = Options(p)
	o.names = projectOrder(data)
	return nil
}

// Validate checks the document shape: every project needs a command, at
// least one environment, a service catalog and at least one group id.
func (o *Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid options document: %w", err)
	}
	for name, project := range o.Projects {
		if project.Services.Empty() {
			return fmt.Errorf("invalid options document: project %q has no services", name)
		}
	}
	return nil
}

// ProjectNames returns the project names in document order.
func (o *Options) ProjectNames() []string {
	if len(o.names) == len(o.Projects) {
		return o.names
	}
	// The document order was lost (options built in code); fall back to a
	// stable sort.
	names := make([]string, 0, len(o.Projects))
	for name := range o.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Project returns the named project, or nil when unknown.
func (o *Options) Project(name string) *Project {
	return o.Projects[name]
}

// Environments returns a project's environment list, nil for unknown projects.
func (o *Options) Environments(project string) []string {
	if p := o.Projects[project]; p != nil {
		return p.Environments
	}
	return nil
}

// GroupIDsByProject returns the chat groups configured for a project.
func (o *Options) GroupIDsByProject(project string) ([]int64, error) {
	p := o.Projects[project]
	if p == nil || len(p.GroupIDs) == 0 {
		return nil, fmt.Errorf("项目 '%s' 未配置 group_ids。请修改 config/options.json 后运行 deploybot initdb 更新数据库配置", project)
	}
	return p.GroupIDs, nil
}

// AllGroupIDs merges every project's group ids, deduplicated and sorted.
func (o *Options) AllGroupIDs() []int64 {
	seen := map[int64]bool{}
	var ids []int64
	for _, p := range o.Projects {
		for _, id := range p.GroupIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// EnsureGroupIDs is the boot-time check: at least one project must exist and
// every project must name at least one group.
func (o *Options) EnsureGroupIDs() error {
	if len(o.Projects) == 0 {
		return fmt.Errorf("缺少项目配置。请修改 config/options.json 后运行 deploybot initdb 更新数据库配置")
	}
	var missing []string
	for _, name := range o.ProjectNames() {
		if len(o.Projects[name].GroupIDs) == 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("以下项目未配置 group_ids: %s。请修改 config/options.json 后运行 deploybot initdb 更新数据库配置", strings.Join(missing, ", "))
	}
	return nil
}

// projectOrder walks the raw document and collects the keys of the projects
// object in their written order.
func projectOrder(doc []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(doc))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := keyTok.(string)
		if key != "projects" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
			continue
		}
		inner, err := dec.Token()
		if err != nil {
			return nil
		}
		if d, ok := inner.(json.Delim); !ok || d != '{' {
			return nil
		}
		var names []string
		for dec.More() {
			nameTok, err := dec.Token()
			if err != nil {
				return nil
			}
			name, _ := nameTok.(string)
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
			names = append(names, name)
		}
		return names
	}
	return nil
}

// ServiceCatalog is either an environment→services map or a legacy flat list.
type ServiceCatalog struct {
	ByEnv map[string][]string
	Flat  []string
}

func (c *ServiceCatalog) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &c.Flat)
	}
	return json.Unmarshal(trimmed, &c.ByEnv)
}

func (c ServiceCatalog) MarshalJSON() ([]byte, error) {
	if c.ByEnv != nil {
		return json.Marshal(c.ByEnv)
	}
	return json.Marshal(c.Flat)
}

// Empty reports whether the catalog defines no services at all.
func (c ServiceCatalog) Empty() bool {
	if len(c.Flat) > 0 {
		return false
	}
	for _, services := range c.ByEnv {
		if len(services) > 0 {
			return false
		}
	}
	return true
}

// ForEnvironment returns the services offered in an environment. Environment
// keys match exactly; legacy flat catalogs serve every environment.
func (c ServiceCatalog) ForEnvironment(env string) []string {
	if c.ByEnv != nil {
		return c.ByEnv[env]
	}
	return c.Flat
}

// MatchEnv resolves an environment to its catalog key, first by exact match
// and then case-insensitively. It reports false for flat catalogs and
// unknown environments.
func (c ServiceCatalog) MatchEnv(env string) (string, []string, bool) {
	if c.ByEnv == nil {
		return "", nil, false
	}
	if services, ok := c.ByEnv[env]; ok {
		return env, services, true
	}
	for key, services := range c.ByEnv {
		if strings.EqualFold(key, env) {
			return key, services, true
		}
	}
	return "", nil, false
}

// All returns every service across environments, deduplicated and sorted.
func (c ServiceCatalog) All() []string {
	if c.ByEnv == nil {
		return c.Flat
	}
	seen := map[string]bool{}
	var all []string
	for _, services := range c.ByEnv {
		for _, s := range services {
			if !seen[s] {
				seen[s] = true
				all = append(all, s)
			}
		}
	}
	sort.Strings(all)
	return all
}

// BranchSetting is a default branch, either one name for every environment
// or an environment→branch map.
type BranchSetting struct {
	value string
	byEnv map[string]string
}

func (b *BranchSetting) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return json.Unmarshal(trimmed, &b.byEnv)
	}
	return json.Unmarshal(trimmed, &b.value)
}

func (b BranchSetting) MarshalJSON() ([]byte, error) {
	if b.byEnv != nil {
		return json.Marshal(b.byEnv)
	}
	return json.Marshal(b.value)
}

// Resolve returns the branch for an environment, or "" when unset. Map
// lookups match the environment exactly, then case-insensitively.
func (b BranchSetting) Resolve(env string) string {
	if b.byEnv == nil {
		return b.value
	}
	if branch, ok := b.byEnv[env]; ok {
		return branch
	}
	for key, branch := range b.byEnv {
		if strings.EqualFold(key, env) {
			return branch
		}
	}
	return b.value
}

// GroupIDList accepts an integer list, a string list, or a single scalar.
type GroupIDList []int64

func (g *GroupIDList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	parse := func(v any) (int64, error) {
		switch val := v.(type) {
		case json.Number:
			return val.Int64()
		case string:
			return json.Number(strings.TrimSpace(val)).Int64()
		default:
			return 0, fmt.Errorf("group id %v is not an integer", v)
		}
	}

	switch v := raw.(type) {
	case nil:
		*g = nil
		return nil
	case []any:
		ids := make(GroupIDList, 0, len(v))
		for _, item := range v {
			id, err := parse(item)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		*g = ids
		return nil
	default:
		id, err := parse(v)
		if err != nil {
			return err
		}
		*g = GroupIDList{id}
		return nil
	}
}

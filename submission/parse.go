package submission

import (
	"regexp"
	"strings"
)

// DefaultBranch is assumed when the submission text carries no branch line.
const DefaultBranch = "uat-ebpay"

var (
	applyTimePattern   = regexp.MustCompile(`申请时间[：:]\s*([^\n]+)`)
	projectPattern     = regexp.MustCompile(`申请项目[：:]\s*([^\n]+)`)
	environmentPattern = regexp.MustCompile(`申请环境[：:]\s*([^\n]+)`)
	servicesPattern    = regexp.MustCompile(`申请部署服务[：:]\s*([^\n]+)`)
	hashPattern        = regexp.MustCompile(`申请发版hash[：:]\s*([^\n]+)`)
	branchPattern      = regexp.MustCompile(`申请发版分支[：:]\s*([^\n]+)`)
	contentPattern     = regexp.MustCompile(`申请发版服务内容[：:]\s*([^\n]+)`)
	addressPattern     = regexp.MustCompile(`(?s)申请新增地址[：:]\s*(.+)`)

	separatorNormalizer = strings.NewReplacer("，", ",", "、", ",")
	hashSeparator       = regexp.MustCompile(`[,\n]`)
)

// Fields is the structured view of a submission text. Parsing is permissive:
// missing labels leave their field empty, and Branch falls back to
// DefaultBranch so downstream triggers always have one.
type Fields struct {
	ApplyTime   string
	Project     string
	Environment string
	Services    []string
	Hashes      []string
	Branch      string
	Content     string
	Addresses   []string
}

// Parse extracts labelled fields from submission text. The labels accept both
// the full-width and ASCII colon, services and hashes accept 中文 separators
// (，、) which are normalised to commas, and hashes additionally split on
// newlines.
func Parse(data string) Fields {
	fields := Fields{Branch: DefaultBranch}

	if m := applyTimePattern.FindStringSubmatch(data); m != nil {
		fields.ApplyTime = strings.TrimSpace(m[1])
	}
	if m := projectPattern.FindStringSubmatch(data); m != nil {
		fields.Project = strings.TrimSpace(m[1])
	}
	if m := environmentPattern.FindStringSubmatch(data); m != nil {
		fields.Environment = strings.TrimSpace(m[1])
	}
	if m := servicesPattern.FindStringSubmatch(data); m != nil {
		fields.Services = splitList(m[1], false)
	}
	if m := hashPattern.FindStringSubmatch(data); m != nil {
		fields.Hashes = splitList(m[1], true)
	}
	if m := branchPattern.FindStringSubmatch(data); m != nil {
		if branch := strings.TrimSpace(m[1]); branch != "" {
			fields.Branch = branch
		}
	}
	if m := contentPattern.FindStringSubmatch(data); m != nil {
		fields.Content = strings.TrimSpace(m[1])
	}
	if m := addressPattern.FindStringSubmatch(data); m != nil {
		for _, line := range strings.Split(strings.TrimSpace(m[1]), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				fields.Addresses = append(fields.Addresses, line)
			}
		}
	}

	return fields
}

func splitList(value string, splitNewlines bool) []string {
	normalized := separatorNormalizer.Replace(strings.TrimSpace(value))

	var parts []string
	if splitNewlines {
		parts = hashSeparator.Split(normalized, -1)
	} else {
		parts = strings.Split(normalized, ",")
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

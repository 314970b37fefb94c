package submission

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Pretty rewrites submission text for chat display with emoji-labelled lines.
// JSON object payloads degrade to plain "key: value" lines, labelled text is
// re-rendered through Parse, and anything unrecognisable is returned as-is.
// The output carries <b> tags and every user fragment is HTML-escaped, so
// callers must send the result with HTML parse mode.
func Pretty(data string, addressOnly bool) string {
	if data == "" {
		return "无"
	}

	if text, ok := prettyJSON(data); ok {
		return text
	}

	fields := Parse(data)
	var lines []string

	if fields.ApplyTime != "" {
		lines = append(lines, "🕐 申请时间: "+esc(fields.ApplyTime))
	}
	if fields.Project != "" {
		lines = append(lines, "📦 申请项目: "+esc(fields.Project))
	}
	if fields.Environment != "" {
		lines = append(lines, "🌍 申请环境: "+esc(fields.Environment))
	}

	if addressOnly {
		addresses := fields.Hashes
		if len(addresses) == 0 {
			addresses = fields.Services
		}
		if len(addresses) == 0 {
			addresses = fields.Addresses
		}
		if len(addresses) > 0 {
			lines = append(lines, "🏷 申请新增地址:")
			for _, addr := range addresses {
				lines = append(lines, "   • "+esc(addr))
			}
		}
		if len(lines) == 0 {
			return esc(data)
		}
		return strings.Join(lines, "\n")
	}

	if fields.Branch != "" {
		lines = append(lines, "🌿 申请发版分支: "+esc(fields.Branch))
	}

	services, hashes := fields.Services, fields.Hashes
	switch {
	case len(hashes) == 1 && len(services) == 1:
		lines = append(lines, fmt.Sprintf("🚀 申请部署服务: %s\n🔑 申请发版hash: <b>%s</b>", esc(services[0]), esc(hashes[0])))
	case len(hashes) == 1:
		lines = append(lines, fmt.Sprintf("🔑 申请发版hash: <b>%s</b>", esc(hashes[0])))
	case len(hashes) > 1 && len(hashes) == len(services):
		pairs := make([]string, len(services))
		for i := range services {
			pairs[i] = fmt.Sprintf("• %s: <b>%s</b>", esc(services[i]), esc(hashes[i]))
		}
		lines = append(lines, "🚀 申请部署服务及hash:\n   "+strings.Join(pairs, "\n   "))
	case len(hashes) > 1:
		items := make([]string, len(hashes))
		for i, h := range hashes {
			items[i] = fmt.Sprintf("• <b>%s</b>", esc(h))
		}
		lines = append(lines, "🔑 申请发版hash:\n   "+strings.Join(items, "\n   "))
	}

	if fields.Content != "" {
		lines = append(lines, "📝 申请发版服务内容: "+esc(fields.Content))
	}

	if len(lines) == 0 {
		return esc(data)
	}
	return strings.Join(lines, "\n")
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// esc escapes user fragments for HTML parse mode.
func esc(s string) string {
	return htmlEscaper.Replace(s)
}

// prettyJSON flattens a JSON object into "key: value" lines, preserving the
// document's key order. Valid JSON that is not an object passes through
// unchanged; invalid JSON reports false so the labelled-text path runs.
func prettyJSON(data string) (string, bool) {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return "", false
	}
	if !strings.HasPrefix(trimmed, "{") {
		return esc(data), true
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	if _, err := dec.Token(); err != nil {
		return "", false
	}

	var lines []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		key, ok := tok.(string)
		if !ok {
			return "", false
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return "", false
		}
		lines = append(lines, esc(key)+": "+esc(jsonScalar(raw)))
	}
	return strings.Join(lines, "\n"), true
}

func jsonScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

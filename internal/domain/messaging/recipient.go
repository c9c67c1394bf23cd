package messaging

import "strings"

// RecipientRef is a parsed recipient reference: a bare agent name
// (ProjectRef == "") resolves in the sender's project; otherwise ProjectRef
// names a target project slug or human key.
type RecipientRef struct {
	ProjectRef string
	AgentName  string
}

// ParseRecipient implements the recipient address grammar:
//
//	Name                      -> agent in sender's project
//	Name@<project-slug-or-key> -> cross-project
//	project:<slug>#Name        -> cross-project
func ParseRecipient(raw string) RecipientRef {
	raw = strings.TrimSpace(raw)

	if rest, ok := strings.CutPrefix(raw, "project:"); ok {
		if slug, name, found := strings.Cut(rest, "#"); found {
			return RecipientRef{ProjectRef: slug, AgentName: name}
		}
		return RecipientRef{AgentName: rest}
	}

	if name, projectRef, found := strings.Cut(raw, "@"); found {
		return RecipientRef{ProjectRef: projectRef, AgentName: name}
	}

	return RecipientRef{AgentName: raw}
}

package archive

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// subjectSlug canonicalizes a message subject into the trailing path
// component used by message/inbox filenames.
func subjectSlug(subject string) string {
	s := strings.ToLower(strings.TrimSpace(subject))
	s = slugPattern.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "message"
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}

// canonicalMessagePath returns messages/<YYYY>/<MM>/<id>-<subject-slug>.md.
func canonicalMessagePath(createdTS time.Time, id int64, subject string) string {
	return path.Join("messages", createdTS.Format("2006"), createdTS.Format("01"),
		fmt.Sprintf("%d-%s.md", id, subjectSlug(subject)))
}

// agentInboxPath returns agents/<name>/inbox/<YYYY>/<MM>/<id>-<subject-slug>.md.
func agentInboxPath(agentName string, createdTS time.Time, id int64, subject string) string {
	return path.Join("agents", agentName, "inbox", createdTS.Format("2006"), createdTS.Format("01"),
		fmt.Sprintf("%d-%s.md", id, subjectSlug(subject)))
}

// agentProfilePath returns agents/<name>/profile.json.
func agentProfilePath(agentName string) string {
	return path.Join("agents", agentName, "profile.json")
}

// attachmentPath returns attachments/<sha256-prefix>/<sha256>.<ext>.
func attachmentPath(sha256, ext string) string {
	prefix := sha256
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	name := sha256
	if ext != "" {
		name = sha256 + "." + ext
	}
	return path.Join("attachments", prefix, name)
}

// reservationSidecarPath returns file_reservations/<id>.json.
func reservationSidecarPath(id string) string {
	return path.Join("file_reservations", id+".json")
}

// buildSlotPath returns build_slots/<slot>/<holder>.json.
func buildSlotPath(slot, holder string) string {
	return path.Join("build_slots", slot, holder+".json")
}

const (
	projectProfilePath = "profile.json"
	projectAliasesPath = "aliases.json"
)

package messaging

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var pathUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// SubjectSlug mirrors project.Slugify for message subjects, used to build
// archive file names.
func SubjectSlug(subject string) string {
	lowered := strings.ToLower(subject)
	slug := pathUnsafe.ReplaceAllString(lowered, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "message"
	}
	if len(slug) > 60 {
		slug = slug[:60]
	}
	return slug
}

// CanonicalMessagePath returns the archive-relative path of a message's
// canonical copy.
func CanonicalMessagePath(id int64, createdTS time.Time, subject string) string {
	return fmt.Sprintf("messages/%04d/%02d/%d-%s.md", createdTS.Year(), createdTS.Month(), id, SubjectSlug(subject))
}

// RecipientInboxPath returns the archive-relative path of one recipient's
// inbox copy of a message.
func RecipientInboxPath(agentName string, id int64, createdTS time.Time, subject string) string {
	return fmt.Sprintf("agents/%s/inbox/%04d/%02d/%d-%s.md", agentName, createdTS.Year(), createdTS.Month(), id, SubjectSlug(subject))
}

// RecipientInboxGlob returns the gitignore-style pattern covering a
// recipient's entire inbox surface, used by the ACK TTL monitor to flag an
// overdue acknowledgment with a system-held reservation.
func RecipientInboxGlob(agentName string) string {
	return fmt.Sprintf("agents/%s/inbox/**", agentName)
}

// Package identity implements the Agent entity and the per-window identity
// binding that lets an agent in the same terminal window keep the same name
// across restarts.
package identity

import "time"

// AttachmentsPolicy controls how a sending agent's attachments are persisted.
type AttachmentsPolicy string

const (
	AttachmentsAuto  AttachmentsPolicy = "auto"
	AttachmentsInline AttachmentsPolicy = "inline"
	AttachmentsFile  AttachmentsPolicy = "file"
	AttachmentsDrop  AttachmentsPolicy = "drop"
)

// ContactPolicy controls whether other projects may reach this agent.
type ContactPolicy string

const (
	ContactOpen         ContactPolicy = "open"
	ContactAuto         ContactPolicy = "auto"
	ContactContactsOnly ContactPolicy = "contacts_only"
	ContactBlockAll     ContactPolicy = "block_all"
)

// Agent is a tool-using identity tied to a project; named, typed by program
// and model. (project_id, name) is unique.
type Agent struct {
	ID                string            `json:"id"`
	ProjectID         string            `json:"project_id"`
	Name              string            `json:"name"`
	Program           string            `json:"program"`
	Model             string            `json:"model"`
	TaskDescription   string            `json:"task_description"`
	InceptionTS       time.Time         `json:"inception_ts"`
	LastActiveTS      time.Time         `json:"last_active_ts"`
	AttachmentsPolicy AttachmentsPolicy `json:"attachments_policy"`
	ContactPolicy     ContactPolicy     `json:"contact_policy"`
	RegistrationToken string            `json:"registration_token,omitempty"`
	// Stub marks an agent auto-created as a send-time recipient placeholder
	// rather than one that registered itself.
	Stub bool `json:"stub,omitempty"`
}

// WindowIdentity is a persistent per-terminal-window binding so an agent in
// the same window keeps the same identity across restarts.
type WindowIdentity struct {
	ProjectID    string     `json:"project_id"`
	WindowUUID   string     `json:"window_uuid"`
	DisplayName  string     `json:"display_name"`
	LastActiveTS time.Time  `json:"last_active_ts"`
	ExpiresTS    *time.Time `json:"expires_ts,omitempty"`
}

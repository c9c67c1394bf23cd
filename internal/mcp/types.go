package mcp

import (
	"github.com/agentcoord/coordbus/internal/domain/contact"
	"github.com/agentcoord/coordbus/internal/domain/identity"
	"github.com/agentcoord/coordbus/internal/domain/messaging"
	"github.com/agentcoord/coordbus/internal/domain/product"
	"github.com/agentcoord/coordbus/internal/domain/project"
	"github.com/agentcoord/coordbus/internal/domain/reservation"
)

// Per-tool request/response shapes. Each pair is the In/Out type argument
// to mcp.AddTool; field names match the wire argument names the tool
// catalog documents.

type EnsureProjectParams struct {
	ProjectKey string `json:"project_key"`
}

type EnsureProjectResult struct {
	Project project.Project `json:"project"`
}

type ListProjectsParams struct{}

type ListProjectsResult struct {
	Projects []project.Summary `json:"projects"`
}

type AdoptProjectParams struct {
	SourceProjectKey string `json:"source_project_key"`
	TargetProjectKey string `json:"target_project_key"`
	Apply            bool   `json:"apply,omitempty"`
}

type AdoptProjectResult struct {
	Result project.AdoptResult `json:"result"`
}

type RegisterAgentParams struct {
	ProjectKey        string                     `json:"project_key"`
	Name              string                     `json:"name,omitempty"`
	Program           string                     `json:"program"`
	Model             string                     `json:"model"`
	TaskDescription   string                     `json:"task_description,omitempty"`
	AttachmentsPolicy identity.AttachmentsPolicy `json:"attachments_policy,omitempty"`
	ContactPolicy     identity.ContactPolicy     `json:"contact_policy,omitempty"`
}

type RegisterAgentResult struct {
	Agent identity.Agent `json:"agent"`
}

type CreateAgentIdentityParams struct {
	ProjectKey      string `json:"project_key"`
	Program         string `json:"program"`
	Model           string `json:"model"`
	NameHint        string `json:"name_hint,omitempty"`
	TaskDescription string `json:"task_description,omitempty"`
}

type CreateAgentIdentityResult struct {
	Agent identity.Agent `json:"agent"`
}

type WhoisParams struct {
	ProjectKey           string `json:"project_key"`
	Name                 string `json:"name"`
	IncludeRecentCommits bool   `json:"include_recent_commits,omitempty"`
}

type WhoisResult struct {
	Agent         identity.Agent          `json:"agent"`
	RecentCommits []identity.RecentCommit `json:"recent_commits,omitempty"`
}

type SetContactPolicyParams struct {
	ProjectKey string                 `json:"project_key"`
	Name       string                 `json:"name"`
	Policy     identity.ContactPolicy `json:"policy"`
}

type SetContactPolicyResult struct {
	OK bool `json:"ok"`
}

type SendMessageParams struct {
	ProjectKey      string               `json:"project_key"`
	SenderName      string               `json:"sender_name"`
	To              []string             `json:"to,omitempty"`
	CC              []string             `json:"cc,omitempty"`
	BCC             []string             `json:"bcc,omitempty"`
	Subject         string               `json:"subject"`
	BodyMD          string               `json:"body_md"`
	ThreadID        string               `json:"thread_id,omitempty"`
	Topic           string               `json:"topic,omitempty"`
	Importance      messaging.Importance `json:"importance,omitempty"`
	AckRequired     bool                 `json:"ack_required,omitempty"`
	AttachmentPaths []string             `json:"attachment_paths,omitempty"`
	ConvertImages   *bool                `json:"convert_images,omitempty"`
}

type SendMessageResult struct {
	Deliveries []messaging.Delivery `json:"deliveries"`
}

type ReplyMessageParams struct {
	ProjectKey string   `json:"project_key"`
	MessageID  int64    `json:"message_id"`
	SenderName string   `json:"sender_name"`
	BodyMD     string   `json:"body_md"`
	To         []string `json:"to,omitempty"`
	CC         []string `json:"cc,omitempty"`
	BCC        []string `json:"bcc,omitempty"`
}

type ReplyMessageResult struct {
	Deliveries []messaging.Delivery `json:"deliveries"`
}

type FetchInboxParams struct {
	ProjectKey    string `json:"project_key,omitempty"`
	ProductKey    string `json:"product_key,omitempty"`
	AgentName     string `json:"agent_name"`
	Limit         int    `json:"limit,omitempty"`
	IncludeBodies bool   `json:"include_bodies,omitempty"`
	UrgentOnly    bool   `json:"urgent_only,omitempty"`
	SinceTS       string `json:"since_ts,omitempty"`
	Topic         string `json:"topic,omitempty"`
	ThreadID      string `json:"thread_id,omitempty"`
}

type FetchInboxResult struct {
	Items []messaging.InboxItem `json:"items"`
}

type ListOutboxParams struct {
	ProjectKey string `json:"project_key"`
	AgentName  string `json:"agent_name"`
	Limit      int    `json:"limit,omitempty"`
}

type ListOutboxResult struct {
	Items []messaging.InboxItem `json:"items"`
}

type MarkMessageReadParams struct {
	ProjectKey string `json:"project_key"`
	AgentName  string `json:"agent_name"`
	MessageID  int64  `json:"message_id"`
}

type MarkMessageReadResult struct {
	OK bool `json:"ok"`
}

type AcknowledgeMessageParams struct {
	ProjectKey string `json:"project_key"`
	AgentName  string `json:"agent_name"`
	MessageID  int64  `json:"message_id"`
}

type AcknowledgeMessageResult struct {
	OK bool `json:"ok"`
}

type SearchMessagesParams struct {
	ProjectKey string `json:"project_key,omitempty"`
	ProductKey string `json:"product_key,omitempty"`
	Query      string `json:"query"`
	Limit      int    `json:"limit,omitempty"`
}

type SearchMessagesResult struct {
	Messages []messaging.Message `json:"messages"`
}

type SummarizeThreadParams struct {
	ProjectKey string `json:"project_key"`
	ThreadID   string `json:"thread_id"`
}

type SummarizeThreadResult struct {
	Summary messaging.ThreadSummary `json:"summary"`
}

type FileReservationPathsParams struct {
	ProjectKey string   `json:"project_key"`
	AgentName  string   `json:"agent_name"`
	Paths      []string `json:"paths"`
	TTLSeconds int64    `json:"ttl_seconds,omitempty"`
	Exclusive  bool     `json:"exclusive,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

type FileReservationPathsResult struct {
	Granted   []reservation.FileReservation `json:"granted"`
	Conflicts []reservation.Conflict        `json:"conflicts,omitempty"`
}

type ReleaseFileReservationsParams struct {
	ProjectKey string   `json:"project_key"`
	AgentName  string   `json:"agent_name"`
	Paths      []string `json:"paths"`
}

type ReleaseFileReservationsResult struct {
	Released int `json:"released"`
}

type RenewFileReservationsParams struct {
	ProjectKey    string   `json:"project_key"`
	AgentName     string   `json:"agent_name"`
	Paths         []string `json:"paths"`
	ExtendSeconds int64    `json:"extend_seconds"`
}

type RenewFileReservationsResult struct {
	Renewed int `json:"renewed"`
}

type ForceReleaseFileReservationParams struct {
	ProjectKey    string `json:"project_key"`
	AgentName     string `json:"agent_name"`
	ReservationID string `json:"reservation_id"`
}

type ForceReleaseFileReservationResult struct {
	OK bool `json:"ok"`
}

type RequestContactParams struct {
	FromProjectKey string `json:"from_project_key"`
	FromAgentName  string `json:"from_agent_name"`
	ToProjectKey   string `json:"to_project_key"`
	ToAgentName    string `json:"to_agent_name"`
	Reason         string `json:"reason,omitempty"`
}

type RequestContactResult struct {
	Link contact.AgentLink `json:"link"`
}

type RespondContactParams struct {
	FromProjectKey string `json:"from_project_key"`
	FromAgentName  string `json:"from_agent_name"`
	ToProjectKey   string `json:"to_project_key"`
	ToAgentName    string `json:"to_agent_name"`
	Accept         bool   `json:"accept"`
	TTLSeconds     int64  `json:"ttl_seconds,omitempty"`
}

type RespondContactResult struct {
	Link contact.AgentLink `json:"link"`
}

type ListContactsParams struct {
	ProjectKey string `json:"project_key"`
	AgentName  string `json:"agent_name"`
}

type ListContactsResult struct {
	Links []contact.AgentLink `json:"links"`
}

type HealthCheckParams struct{}

type HealthCheckResult struct {
	Status string `json:"status"`
}

type EnsureProductParams struct {
	ProductKey string `json:"product_key"`
	Name       string `json:"name"`
}

type EnsureProductResult struct {
	Product product.Product `json:"product"`
}

type LinkProjectToProductParams struct {
	ProductKey string `json:"product_key"`
	ProjectKey string `json:"project_key"`
}

type LinkProjectToProductResult struct {
	Product product.Product `json:"product"`
	Project project.Project `json:"project"`
}

type ProductStatusParams struct {
	ProductKey string `json:"product_key"`
}

type ProductStatusResult struct {
	Status product.Status `json:"status"`
}

package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/agentcoord/coordbus/internal/domain/contact"
	"github.com/agentcoord/coordbus/internal/domain/identity"
	"github.com/agentcoord/coordbus/internal/domain/messaging"
	"github.com/agentcoord/coordbus/internal/domain/product"
	"github.com/agentcoord/coordbus/internal/domain/project"
	"github.com/agentcoord/coordbus/internal/domain/reservation"
	"github.com/agentcoord/coordbus/internal/metrics"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ProjectService is the Catalog surface the dispatch layer needs.
type ProjectService interface {
	Ensure(ctx context.Context, humanKey string) (*project.Project, error)
	GetBySlug(ctx context.Context, slugOrKey string) (*project.Project, error)
	List(ctx context.Context) ([]project.Summary, error)
	Adopt(ctx context.Context, sourceKey, targetKey string, apply bool) (*project.AdoptResult, error)
}

// IdentityService is the identity surface the dispatch layer needs.
type IdentityService interface {
	Register(ctx context.Context, req identity.RegisterRequest) (*identity.Agent, error)
	CreateIdentity(ctx context.Context, req identity.CreateIdentityRequest) (*identity.Agent, error)
	Whois(ctx context.Context, projectID, name string) (*identity.Agent, error)
	RecentCommits(ctx context.Context, repoPath string, limit int) ([]identity.RecentCommit, error)
	SetContactPolicy(ctx context.Context, projectID, name string, policy identity.ContactPolicy) error
	TouchLastActive(ctx context.Context, agentID string) error
}

// MessagingService is the messaging surface the dispatch layer needs.
type MessagingService interface {
	Send(ctx context.Context, req messaging.SendRequest) (*messaging.SendResult, error)
	Reply(ctx context.Context, req messaging.ReplyRequest) (*messaging.SendResult, error)
	FetchInbox(ctx context.Context, projectKey, agentName string, opts messaging.InboxOptions) ([]messaging.InboxItem, error)
	FetchProductInbox(ctx context.Context, productKey, agentName string, opts messaging.InboxOptions) ([]messaging.InboxItem, error)
	ListOutbox(ctx context.Context, projectKey, agentName string, opts messaging.InboxOptions) ([]messaging.InboxItem, error)
	MarkRead(ctx context.Context, projectKey, agentName string, messageID int64) error
	Acknowledge(ctx context.Context, projectKey, agentName string, messageID int64) error
	Search(ctx context.Context, projectKey, query string, opts messaging.SearchOptions) ([]messaging.Message, error)
	SearchProduct(ctx context.Context, productKey, query string, opts messaging.SearchOptions) ([]messaging.Message, error)
	SummarizeThread(ctx context.Context, projectKey, threadID string) (*messaging.ThreadSummary, error)
}

// ReservationService is the reservation surface the dispatch layer needs.
type ReservationService interface {
	GrantPaths(ctx context.Context, projectSlug, projectID, agentID string, paths []string, ttlSeconds int64, exclusive bool, reason string) (*reservation.GrantResult, error)
	Release(ctx context.Context, projectSlug, projectID, agentID string, paths []string) (int, error)
	Renew(ctx context.Context, projectSlug, projectID, agentID string, paths []string, extendSeconds int64) (int, error)
	ForceRelease(ctx context.Context, projectSlug, projectID, requesterAgentID, reservationID string) error
}

// ContactService is the contact surface the dispatch layer needs.
type ContactService interface {
	RequestContact(ctx context.Context, fromProjectID, fromAgentID, toProjectID, toAgentID, reason string) (*contact.AgentLink, error)
	RespondContact(ctx context.Context, fromProjectID, fromAgentID, toProjectID, toAgentID string, accept bool, ttlSeconds int64) (*contact.AgentLink, error)
	ListContacts(ctx context.Context, projectID, agentID string) ([]contact.AgentLink, error)
}

// ProductService is the product-grouping surface the dispatch layer needs.
type ProductService interface {
	Ensure(ctx context.Context, productKey, name string) (*product.Product, error)
	LinkProject(ctx context.Context, productKey, projectKey string) (*product.Product, product.ProjectRef, error)
	Status(ctx context.Context, productKey string) (*product.Status, error)
}

// Services bundles the domain services a Handler dispatches against.
type Services struct {
	Projects     ProjectService
	Identity     IdentityService
	Messaging    MessagingService
	Reservations ReservationService
	Contacts     ContactService
	Products     ProductService
}

// Handler implements every tool's business logic: resolve project/agent
// context, call the matching domain service, map the error, and record a
// metrics sample. It holds no transport-specific state.
type Handler struct {
	svc         Services
	recorder    *metrics.Recorder
	callTimeout time.Duration
	logger      *slog.Logger
}

func NewHandler(svc Services, recorder *metrics.Recorder, callTimeout time.Duration, logger *slog.Logger) *Handler {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, recorder: recorder, callTimeout: callTimeout, logger: logger}
}

// dispatch wraps a tool body with the per-call timeout and metrics
// recording shared by every tool, and turns any error into a structured
// tool-error result instead of a transport-level failure. A non-nil
// return means the caller should surface it as the tool result and skip
// its own output value.
func (h *Handler) dispatch(ctx context.Context, tool string, fn func(ctx context.Context) error) *sdkmcp.CallToolResult {
	ctx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if h.recorder != nil {
		h.recorder.Record(tool, time.Since(start), err)
	}
	if err == nil {
		return nil
	}

	apiErr := MapError(err)
	if apiErr == nil {
		h.logger.Error("unmapped tool error", "tool", tool, "error", err)
		apiErr = &APIError{Kind: "INTERNAL_ERROR", Message: "internal error"}
	}
	text, merr := json.Marshal(apiErr)
	if merr != nil {
		text = []byte(apiErr.Error())
	}
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(text)}},
	}
}

func (h *Handler) resolveProject(ctx context.Context, key string) (*project.Project, error) {
	if key == "" {
		return nil, invalidArgument("project_key is required")
	}
	return h.svc.Projects.GetBySlug(ctx, key)
}

// resolveAgent looks up an agent by name and touches its last_active_ts,
// the context-resolution step every tool that acts on behalf of a named
// agent performs before its domain call.
func (h *Handler) resolveAgent(ctx context.Context, projectID, name string) (*identity.Agent, error) {
	agent, err := h.svc.Identity.Whois(ctx, projectID, name)
	if err != nil {
		return nil, err
	}
	_ = h.svc.Identity.TouchLastActive(ctx, agent.ID)
	return agent, nil
}

func (h *Handler) EnsureProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in EnsureProjectParams) (*sdkmcp.CallToolResult, EnsureProjectResult, error) {
	var out EnsureProjectResult
	if res := h.dispatch(ctx, "ensure_project", func(ctx context.Context) error {
		if in.ProjectKey == "" {
			return invalidArgument("project_key is required")
		}
		p, err := h.svc.Projects.Ensure(ctx, in.ProjectKey)
		if err != nil {
			return err
		}
		out.Project = *p
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) ListProjects(ctx context.Context, _ *sdkmcp.CallToolRequest, _ ListProjectsParams) (*sdkmcp.CallToolResult, ListProjectsResult, error) {
	var out ListProjectsResult
	if res := h.dispatch(ctx, "list_projects", func(ctx context.Context) error {
		projects, err := h.svc.Projects.List(ctx)
		if err != nil {
			return err
		}
		out.Projects = projects
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) AdoptProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in AdoptProjectParams) (*sdkmcp.CallToolResult, AdoptProjectResult, error) {
	var out AdoptProjectResult
	if res := h.dispatch(ctx, "adopt_project", func(ctx context.Context) error {
		if in.SourceProjectKey == "" || in.TargetProjectKey == "" {
			return invalidArgument("source_project_key and target_project_key are required")
		}
		result, err := h.svc.Projects.Adopt(ctx, in.SourceProjectKey, in.TargetProjectKey, in.Apply)
		if err != nil {
			return err
		}
		out.Result = *result
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) RegisterAgent(ctx context.Context, _ *sdkmcp.CallToolRequest, in RegisterAgentParams) (*sdkmcp.CallToolResult, RegisterAgentResult, error) {
	var out RegisterAgentResult
	if res := h.dispatch(ctx, "register_agent", func(ctx context.Context) error {
		proj, err := h.resolveProject(ctx, in.ProjectKey)
		if err != nil {
			return err
		}
		agent, err := h.svc.Identity.Register(ctx, identity.RegisterRequest{
			ProjectID:         proj.ID,
			Name:              in.Name,
			Program:           in.Program,
			Model:             in.Model,
			TaskDescription:   in.TaskDescription,
			AttachmentsPolicy: in.AttachmentsPolicy,
			ContactPolicy:     in.ContactPolicy,
		})
		if err != nil {
			return err
		}
		out.Agent = *agent
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) CreateAgentIdentity(ctx context.Context, _ *sdkmcp.CallToolRequest, in CreateAgentIdentityParams) (*sdkmcp.CallToolResult, CreateAgentIdentityResult, error) {
	var out CreateAgentIdentityResult
	if res := h.dispatch(ctx, "create_agent_identity", func(ctx context.Context) error {
		proj, err := h.resolveProject(ctx, in.ProjectKey)
		if err != nil {
			return err
		}
		agent, err := h.svc.Identity.CreateIdentity(ctx, identity.CreateIdentityRequest{
			ProjectID:       proj.ID,
			Program:         in.Program,
			Model:           in.Model,
			NameHint:        in.NameHint,
			TaskDescription: in.TaskDescription,
		})
		if err != nil {
			return err
		}
		out.Agent = *agent
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) Whois(ctx context.Context, _ *sdkmcp.CallToolRequest, in WhoisParams) (*sdkmcp.CallToolResult, WhoisResult, error) {
	var out WhoisResult
	if res := h.dispatch(ctx, "whois", func(ctx context.Context) error {
		proj, err := h.resolveProject(ctx, in.ProjectKey)
		if err != nil {
			return err
		}
		agent, err := h.svc.Identity.Whois(ctx, proj.ID, in.Name)
		if err != nil {
			return err
		}
		out.Agent = *agent
		if in.IncludeRecentCommits {
			commits, err := h.svc.Identity.RecentCommits(ctx, proj.HumanKey, 10)
			if err != nil {
				return err
			}
			out.RecentCommits = commits
		}
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) SetContactPolicy(ctx context.Context, _ *sdkmcp.CallToolRequest, in SetContactPolicyParams) (*sdkmcp.CallToolResult, SetContactPolicyResult, error) {
	var out SetContactPolicyResult
	if res := h.dispatch(ctx, "set_contact_policy", func(ctx context.Context) error {
		proj, err := h.resolveProject(ctx, in.ProjectKey)
		if err != nil {
			return err
		}
		if err := h.svc.Identity.SetContactPolicy(ctx, proj.ID, in.Name, in.Policy); err != nil {
			return err
		}
		out.OK = true
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) SendMessage(ctx context.Context, _ *sdkmcp.CallToolRequest, in SendMessageParams) (*sdkmcp.CallToolResult, SendMessageResult, error) {
	var out SendMessageResult
	if res := h.dispatch(ctx, "send_message", func(ctx context.Context) error {
		result, err := h.svc.Messaging.Send(ctx, messaging.SendRequest{
			ProjectKey:      in.ProjectKey,
			SenderName:      in.SenderName,
			To:              in.To,
			CC:              in.CC,
			BCC:             in.BCC,
			Subject:         in.Subject,
			BodyMD:          in.BodyMD,
			ThreadID:        in.ThreadID,
			Topic:           in.Topic,
			Importance:      in.Importance,
			AckRequired:     in.AckRequired,
			AttachmentPaths: in.AttachmentPaths,
			ConvertImages:   in.ConvertImages,
		})
		if err != nil {
			return err
		}
		out.Deliveries = result.Deliveries
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) ReplyMessage(ctx context.Context, _ *sdkmcp.CallToolRequest, in ReplyMessageParams) (*sdkmcp.CallToolResult, ReplyMessageResult, error) {
	var out ReplyMessageResult
	if res := h.dispatch(ctx, "reply_message", func(ctx context.Context) error {
		result, err := h.svc.Messaging.Reply(ctx, messaging.ReplyRequest{
			ProjectKey: in.ProjectKey,
			MessageID:  in.MessageID,
			SenderName: in.SenderName,
			BodyMD:     in.BodyMD,
			To:         in.To,
			CC:         in.CC,
			BCC:        in.BCC,
		})
		if err != nil {
			return err
		}
		out.Deliveries = result.Deliveries
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) FetchInbox(ctx context.Context, _ *sdkmcp.CallToolRequest, in FetchInboxParams) (*sdkmcp.CallToolResult, FetchInboxResult, error) {
	var out FetchInboxResult
	if res := h.dispatch(ctx, "fetch_inbox", func(ctx context.Context) error {
		opts := messaging.InboxOptions{
			Limit:         in.Limit,
			IncludeBodies: in.IncludeBodies,
			UrgentOnly:    in.UrgentOnly,
			Topic:         in.Topic,
			ThreadID:      in.ThreadID,
		}
		if in.SinceTS != "" {
			since, perr := time.Parse(time.RFC3339, in.SinceTS)
			if perr != nil {
				return invalidArgument("since_ts must be RFC3339")
			}
			opts.SinceTS = &since
		}
		if in.ProjectKey == "" && in.ProductKey == "" {
			return invalidArgument("project_key or product_key is required")
		}
		var items []messaging.InboxItem
		var err error
		if in.ProductKey != "" {
			items, err = h.svc.Messaging.FetchProductInbox(ctx, in.ProductKey, in.AgentName, opts)
		} else {
			items, err = h.svc.Messaging.FetchInbox(ctx, in.ProjectKey, in.AgentName, opts)
		}
		if err != nil {
			return err
		}
		out.Items = items
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) ListOutbox(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListOutboxParams) (*sdkmcp.CallToolResult, ListOutboxResult, error) {
	var out ListOutboxResult
	if res := h.dispatch(ctx, "list_outbox", func(ctx context.Context) error {
		items, err := h.svc.Messaging.ListOutbox(ctx, in.ProjectKey, in.AgentName, messaging.InboxOptions{Limit: in.Limit})
		if err != nil {
			return err
		}
		out.Items = items
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) MarkMessageRead(ctx context.Context, _ *sdkmcp.CallToolRequest, in MarkMessageReadParams) (*sdkmcp.CallToolResult, MarkMessageReadResult, error) {
	var out MarkMessageReadResult
	if res := h.dispatch(ctx, "mark_message_read", func(ctx context.Context) error {
		if err := h.svc.Messaging.MarkRead(ctx, in.ProjectKey, in.AgentName, in.MessageID); err != nil {
			return err
		}
		out.OK = true
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) AcknowledgeMessage(ctx context.Context, _ *sdkmcp.CallToolRequest, in AcknowledgeMessageParams) (*sdkmcp.CallToolResult, AcknowledgeMessageResult, error) {
	var out AcknowledgeMessageResult
	if res := h.dispatch(ctx, "acknowledge_message", func(ctx context.Context) error {
		if err := h.svc.Messaging.Acknowledge(ctx, in.ProjectKey, in.AgentName, in.MessageID); err != nil {
			return err
		}
		out.OK = true
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) SearchMessages(ctx context.Context, _ *sdkmcp.CallToolRequest, in SearchMessagesParams) (*sdkmcp.CallToolResult, SearchMessagesResult, error) {
	var out SearchMessagesResult
	if res := h.dispatch(ctx, "search_messages", func(ctx context.Context) error {
		if in.Query == "" {
			return invalidArgument("query is required")
		}
		if in.ProjectKey == "" && in.ProductKey == "" {
			return invalidArgument("project_key or product_key is required")
		}
		var messages []messaging.Message
		var err error
		if in.ProductKey != "" {
			messages, err = h.svc.Messaging.SearchProduct(ctx, in.ProductKey, in.Query, messaging.SearchOptions{Limit: in.Limit})
		} else {
			messages, err = h.svc.Messaging.Search(ctx, in.ProjectKey, in.Query, messaging.SearchOptions{Limit: in.Limit})
		}
		if err != nil {
			return err
		}
		out.Messages = messages
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) SummarizeThread(ctx context.Context, _ *sdkmcp.CallToolRequest, in SummarizeThreadParams) (*sdkmcp.CallToolResult, SummarizeThreadResult, error) {
	var out SummarizeThreadResult
	if res := h.dispatch(ctx, "summarize_thread", func(ctx context.Context) error {
		summary, err := h.svc.Messaging.SummarizeThread(ctx, in.ProjectKey, in.ThreadID)
		if err != nil {
			return err
		}
		out.Summary = *summary
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) FileReservationPaths(ctx context.Context, _ *sdkmcp.CallToolRequest, in FileReservationPathsParams) (*sdkmcp.CallToolResult, FileReservationPathsResult, error) {
	var out FileReservationPathsResult
	if res := h.dispatch(ctx, "file_reservation_paths", func(ctx context.Context) error {
		proj, err := h.resolveProject(ctx, in.ProjectKey)
		if err != nil {
			return err
		}
		agent, err := h.resolveAgent(ctx, proj.ID, in.AgentName)
		if err != nil {
			return err
		}
		if len(in.Paths) == 0 {
			return invalidArgument("paths is required")
		}
		result, err := h.svc.Reservations.GrantPaths(ctx, proj.Slug, proj.ID, agent.ID, in.Paths, in.TTLSeconds, in.Exclusive, in.Reason)
		if err != nil {
			return err
		}
		out.Granted = result.Granted
		out.Conflicts = result.Conflicts
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) ReleaseFileReservations(ctx context.Context, _ *sdkmcp.CallToolRequest, in ReleaseFileReservationsParams) (*sdkmcp.CallToolResult, ReleaseFileReservationsResult, error) {
	var out ReleaseFileReservationsResult
	if res := h.dispatch(ctx, "release_file_reservations", func(ctx context.Context) error {
		proj, err := h.resolveProject(ctx, in.ProjectKey)
		if err != nil {
			return err
		}
		agent, err := h.resolveAgent(ctx, proj.ID, in.AgentName)
		if err != nil {
			return err
		}
		released, err := h.svc.Reservations.Release(ctx, proj.Slug, proj.ID, agent.ID, in.Paths)
		if err != nil {
			return err
		}
		out.Released = released
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) RenewFileReservations(ctx context.Context, _ *sdkmcp.CallToolRequest, in RenewFileReservationsParams) (*sdkmcp.CallToolResult, RenewFileReservationsResult, error) {
	var out RenewFileReservationsResult
	if res := h.dispatch(ctx, "renew_file_reservations", func(ctx context.Context) error {
		proj, err := h.resolveProject(ctx, in.ProjectKey)
		if err != nil {
			return err
		}
		agent, err := h.resolveAgent(ctx, proj.ID, in.AgentName)
		if err != nil {
			return err
		}
		renewed, err := h.svc.Reservations.Renew(ctx, proj.Slug, proj.ID, agent.ID, in.Paths, in.ExtendSeconds)
		if err != nil {
			return err
		}
		out.Renewed = renewed
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) ForceReleaseFileReservation(ctx context.Context, _ *sdkmcp.CallToolRequest, in ForceReleaseFileReservationParams) (*sdkmcp.CallToolResult, ForceReleaseFileReservationResult, error) {
	var out ForceReleaseFileReservationResult
	if res := h.dispatch(ctx, "force_release_file_reservation", func(ctx context.Context) error {
		proj, err := h.resolveProject(ctx, in.ProjectKey)
		if err != nil {
			return err
		}
		agent, err := h.resolveAgent(ctx, proj.ID, in.AgentName)
		if err != nil {
			return err
		}
		if err := h.svc.Reservations.ForceRelease(ctx, proj.Slug, proj.ID, agent.ID, in.ReservationID); err != nil {
			return err
		}
		out.OK = true
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) RequestContact(ctx context.Context, _ *sdkmcp.CallToolRequest, in RequestContactParams) (*sdkmcp.CallToolResult, RequestContactResult, error) {
	var out RequestContactResult
	if res := h.dispatch(ctx, "request_contact", func(ctx context.Context) error {
		fromProj, err := h.resolveProject(ctx, in.FromProjectKey)
		if err != nil {
			return err
		}
		toProj, err := h.resolveProject(ctx, in.ToProjectKey)
		if err != nil {
			return err
		}
		fromAgent, err := h.resolveAgent(ctx, fromProj.ID, in.FromAgentName)
		if err != nil {
			return err
		}
		toAgent, err := h.resolveAgent(ctx, toProj.ID, in.ToAgentName)
		if err != nil {
			return err
		}
		link, err := h.svc.Contacts.RequestContact(ctx, fromProj.ID, fromAgent.ID, toProj.ID, toAgent.ID, in.Reason)
		if err != nil {
			return err
		}
		out.Link = *link
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) RespondContact(ctx context.Context, _ *sdkmcp.CallToolRequest, in RespondContactParams) (*sdkmcp.CallToolResult, RespondContactResult, error) {
	var out RespondContactResult
	if res := h.dispatch(ctx, "respond_contact", func(ctx context.Context) error {
		fromProj, err := h.resolveProject(ctx, in.FromProjectKey)
		if err != nil {
			return err
		}
		toProj, err := h.resolveProject(ctx, in.ToProjectKey)
		if err != nil {
			return err
		}
		fromAgent, err := h.resolveAgent(ctx, fromProj.ID, in.FromAgentName)
		if err != nil {
			return err
		}
		toAgent, err := h.resolveAgent(ctx, toProj.ID, in.ToAgentName)
		if err != nil {
			return err
		}
		link, err := h.svc.Contacts.RespondContact(ctx, fromProj.ID, fromAgent.ID, toProj.ID, toAgent.ID, in.Accept, in.TTLSeconds)
		if err != nil {
			return err
		}
		out.Link = *link
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) ListContacts(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListContactsParams) (*sdkmcp.CallToolResult, ListContactsResult, error) {
	var out ListContactsResult
	if res := h.dispatch(ctx, "list_contacts", func(ctx context.Context) error {
		proj, err := h.resolveProject(ctx, in.ProjectKey)
		if err != nil {
			return err
		}
		agent, err := h.resolveAgent(ctx, proj.ID, in.AgentName)
		if err != nil {
			return err
		}
		links, err := h.svc.Contacts.ListContacts(ctx, proj.ID, agent.ID)
		if err != nil {
			return err
		}
		out.Links = links
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) HealthCheck(ctx context.Context, _ *sdkmcp.CallToolRequest, _ HealthCheckParams) (*sdkmcp.CallToolResult, HealthCheckResult, error) {
	return nil, HealthCheckResult{Status: "ok"}, nil
}

func (h *Handler) EnsureProduct(ctx context.Context, _ *sdkmcp.CallToolRequest, in EnsureProductParams) (*sdkmcp.CallToolResult, EnsureProductResult, error) {
	var out EnsureProductResult
	if res := h.dispatch(ctx, "ensure_product", func(ctx context.Context) error {
		p, err := h.svc.Products.Ensure(ctx, in.ProductKey, in.Name)
		if err != nil {
			return err
		}
		out.Product = *p
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) LinkProjectToProduct(ctx context.Context, _ *sdkmcp.CallToolRequest, in LinkProjectToProductParams) (*sdkmcp.CallToolResult, LinkProjectToProductResult, error) {
	var out LinkProjectToProductResult
	if res := h.dispatch(ctx, "link_project_to_product", func(ctx context.Context) error {
		if in.ProjectKey == "" {
			return invalidArgument("project_key is required")
		}
		prod, ref, err := h.svc.Products.LinkProject(ctx, in.ProductKey, in.ProjectKey)
		if err != nil {
			return err
		}
		out.Product = *prod
		proj, err := h.svc.Projects.GetBySlug(ctx, ref.Slug)
		if err != nil {
			return err
		}
		out.Project = *proj
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

func (h *Handler) ProductStatus(ctx context.Context, _ *sdkmcp.CallToolRequest, in ProductStatusParams) (*sdkmcp.CallToolResult, ProductStatusResult, error) {
	var out ProductStatusResult
	if res := h.dispatch(ctx, "product_status", func(ctx context.Context) error {
		status, err := h.svc.Products.Status(ctx, in.ProductKey)
		if err != nil {
			return err
		}
		out.Status = *status
		return nil
	}); res != nil {
		return res, out, nil
	}
	return nil, out, nil
}

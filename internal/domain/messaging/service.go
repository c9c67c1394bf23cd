package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/agentcoord/coordbus/internal/domain/identity"
	"github.com/agentcoord/coordbus/internal/domain/project"
	"github.com/agentcoord/coordbus/internal/repository"
)

// Config holds the subset of server configuration the Messaging Engine
// consults on every send.
type Config struct {
	AutoRegisterRecipients bool
	AutoHandshakeOnBlock   bool
	AttachmentPolicy       AttachmentPolicy
}

// Service implements send/reply/fetch/ack/search for the messaging engine.
type Service struct {
	repo       Repository
	agents     AgentResolver
	projects   ProjectResolver
	products   ProductResolver
	contacts   ContactGate
	reserve    ReservationGate
	archive    ArchiveWriter
	attachStor AttachmentStore
	cfg        Config
	logger     *slog.Logger
}

func NewService(
	repo Repository,
	agents AgentResolver,
	projects ProjectResolver,
	products ProductResolver,
	contacts ContactGate,
	reserve ReservationGate,
	archive ArchiveWriter,
	attachStor AttachmentStore,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		agents:     agents,
		projects:   projects,
		products:   products,
		contacts:   contacts,
		reserve:    reserve,
		archive:    archive,
		attachStor: attachStor,
		cfg:        cfg,
		logger:     logger,
	}
}

// SendRequest describes a send_message call.
type SendRequest struct {
	ProjectKey      string
	SenderName      string
	To              []string
	CC              []string
	BCC             []string
	Subject         string
	BodyMD          string
	ThreadID        string
	Topic           string
	Importance      Importance
	AckRequired     bool
	AttachmentPaths []string
	ConvertImages   *bool
}

// Delivery describes one recipient's view of a completed send, grouped by
// the project the recipient lives in.
type Delivery struct {
	ProjectSlug string
	Payload     Message
}

// SendResult is send_message's response shape.
type SendResult struct {
	Deliveries []Delivery
}

// resolvedRecipient is an agent plus the project it was resolved in.
type resolvedRecipient struct {
	kind    RecipientKind
	project struct {
		id   string
		slug string
	}
	agent *identity.Agent
}

// Send implements send_message.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.SenderName) == "" {
		return nil, ErrInvalidInput
	}
	if len(req.To) == 0 && len(req.CC) == 0 && len(req.BCC) == 0 {
		return nil, ErrNoRecipients
	}

	senderProject, err := s.projects.GetBySlug(ctx, req.ProjectKey)
	if err != nil {
		return nil, fmt.Errorf("resolving sender project: %w", err)
	}
	sender, err := s.agents.Whois(ctx, senderProject.ID, req.SenderName)
	if err != nil {
		return nil, fmt.Errorf("resolving sender: %w", err)
	}

	resolved, pending, err := s.resolveRecipients(ctx, senderProject.ID, senderProject.Slug, sender, req)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrContactPending
	}
	if len(resolved) == 0 {
		return nil, ErrNoRecipients
	}

	importance := req.Importance
	if importance == "" {
		importance = ImportanceNormal
	}

	attachments := make([]Attachment, 0, len(req.AttachmentPaths))
	for _, path := range req.AttachmentPaths {
		att, err := BuildAttachment(ctx, s.attachStor, s.cfg.AttachmentPolicy, path, req.ConvertImages)
		if err != nil {
			return nil, fmt.Errorf("building attachment: %w", err)
		}
		attachments = append(attachments, att)
	}

	now := time.Now()
	msg := &Message{
		ProjectID:   senderProject.ID,
		SenderID:    sender.ID,
		ThreadID:    req.ThreadID,
		Topic:       req.Topic,
		Subject:     req.Subject,
		BodyMD:      req.BodyMD,
		Importance:  importance,
		AckRequired: req.AckRequired,
		CreatedTS:   now,
		Attachments: attachments,
	}

	recipients := make([]MessageRecipient, 0, len(resolved))
	for _, r := range resolved {
		recipients = append(recipients, MessageRecipient{AgentID: r.agent.ID, Kind: r.kind})
	}

	// Pre-write gating: check for reservation conflicts on every path this
	// send will touch before committing anything. The
	// message id isn't assigned until the Catalog insert below, but
	// reservation patterns are gitignore-style globs over the directory
	// shape (year/month/recipient), so a placeholder id here matches the
	// same patterns the real, post-insert path would.
	canonicalPath := CanonicalMessagePath(0, now, req.Subject)
	inboxPaths := make([]string, 0, len(resolved))
	recipientNames := make(map[string]string, len(resolved))
	for _, r := range resolved {
		inboxPaths = append(inboxPaths, RecipientInboxPath(r.agent.Name, 0, now, req.Subject))
		recipientNames[r.agent.ID] = r.agent.Name
	}
	targets := TargetPaths(canonicalPath, inboxPaths)
	conflicts, err := s.reserve.CheckConflicts(ctx, senderProject.ID, sender.ID, targets)
	if err != nil {
		return nil, fmt.Errorf("checking reservation conflicts: %w", err)
	}
	if len(conflicts) > 0 {
		return nil, &ConflictError{Conflicts: conflicts}
	}

	// Step 1: Catalog transaction.
	if err := s.repo.InsertMessage(ctx, msg, recipients); err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	// Step 2: Archive write (canonical + per-recipient inbox + attachments,
	// single commit). A failure here leaves the message visible-but-
	// unarchived per I5; it is not rolled back.
	archiveInput := ArchiveMessageInput{
		ProjectSlug:    senderProject.Slug,
		Message:        *msg,
		Recipients:     recipients,
		RecipientNames: recipientNames,
		SenderName:     sender.Name,
	}
	if err := s.archive.WriteMessage(ctx, archiveInput); err != nil {
		s.logger.Warn("archive write pending", "message_id", msg.ID, "error", err)
	}

	// Step 3: post-commit bookkeeping.
	if err := s.agents.TouchLastActive(ctx, sender.ID); err != nil {
		s.logger.Warn("touching sender last_active_ts", "error", err)
	}

	deliveries := make([]Delivery, 0, len(resolved))
	for _, r := range resolved {
		deliveries = append(deliveries, Delivery{ProjectSlug: r.project.slug, Payload: *msg})
	}

	return &SendResult{Deliveries: deliveries}, nil
}

// systemSenderName is the auto-created persona used for notifications the
// server itself originates (force-release, contact requests).
const systemSenderName = "system"

// SendSystemNotification delivers a server-originated message to one
// recipient, skipping sender resolution, the contact gate, and the
// reservation conflict check — only a real agent send goes through those
//. It implements the narrow NotificationSender port
// declared independently by the Reservation and Contact engines.
func (s *Service) SendSystemNotification(ctx context.Context, projectID, recipientAgentID, subject, body string) error {
	proj, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return fmt.Errorf("resolving project: %w", err)
	}
	system, err := s.agents.ResolveOrAutoCreate(ctx, projectID, systemSenderName, true)
	if err != nil {
		return fmt.Errorf("resolving system sender: %w", err)
	}
	recipient, err := s.agents.GetByID(ctx, recipientAgentID)
	if err != nil {
		return fmt.Errorf("resolving recipient: %w", err)
	}

	now := time.Now()
	msg := &Message{
		ProjectID:  projectID,
		SenderID:   system.ID,
		Subject:    subject,
		BodyMD:     body,
		Importance: ImportanceNormal,
		CreatedTS:  now,
	}
	recipients := []MessageRecipient{{AgentID: recipient.ID, Kind: KindTo}}

	if err := s.repo.InsertMessage(ctx, msg, recipients); err != nil {
		return fmt.Errorf("inserting system notification: %w", err)
	}

	archiveInput := ArchiveMessageInput{
		ProjectSlug:    proj.Slug,
		Message:        *msg,
		Recipients:     recipients,
		RecipientNames: map[string]string{recipient.ID: recipient.Name},
		SenderName:     systemSenderName,
	}
	if err := s.archive.WriteSystemNotification(ctx, archiveInput); err != nil {
		s.logger.Warn("archive write pending for system notification", "message_id", msg.ID, "error", err)
	}
	return nil
}

// ConflictError carries the structured FILE_RESERVATION_CONFLICT payload.
type ConflictError struct {
	Conflicts []PathConflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("file reservation conflict on %d pattern(s)", len(e.Conflicts))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrFileReservationConflict
}

func (s *Service) resolveRecipients(ctx context.Context, senderProjectID, senderProjectSlug string, sender *identity.Agent, req SendRequest) ([]resolvedRecipient, bool, error) {
	var resolved []resolvedRecipient
	anyPending := false

	resolveOne := func(raw string, kind RecipientKind) error {
		ref := ParseRecipient(raw)

		targetProjectID := senderProjectID
		targetProjectSlug := senderProjectSlug
		crossProject := false
		if ref.ProjectRef != "" {
			proj, err := s.projects.GetBySlug(ctx, ref.ProjectRef)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) || errors.Is(err, project.ErrProjectNotFound) {
					return ErrRecipientProjectNotFound
				}
				return fmt.Errorf("resolving recipient project: %w", err)
			}
			targetProjectID = proj.ID
			targetProjectSlug = proj.Slug
			crossProject = targetProjectID != senderProjectID
		}

		agent, err := s.agents.ResolveOrAutoCreate(ctx, targetProjectID, ref.AgentName, s.cfg.AutoRegisterRecipients)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) || errors.Is(err, identity.ErrAgentNotFound) {
				return ErrRecipientNotFound
			}
			return err
		}

		if crossProject {
			allowed, pendingOpened, err := s.checkContactGate(ctx, senderProjectID, sender.ID, targetProjectID, agent)
			if err != nil {
				return err
			}
			if pendingOpened {
				anyPending = true
				return nil
			}
			if !allowed {
				return ErrContactRequired
			}
		}

		resolved = append(resolved, resolvedRecipient{
			kind: kind,
			project: struct {
				id   string
				slug string
			}{id: targetProjectID, slug: targetProjectSlug},
			agent: agent,
		})
		return nil
	}

	for _, raw := range req.To {
		if err := resolveOne(raw, KindTo); err != nil {
			return nil, false, err
		}
	}
	for _, raw := range req.CC {
		if err := resolveOne(raw, KindCC); err != nil {
			return nil, false, err
		}
	}
	for _, raw := range req.BCC {
		if err := resolveOne(raw, KindBCC); err != nil {
			return nil, false, err
		}
	}

	return resolved, anyPending, nil
}

// checkContactGate implements the cross-project delivery rule: same
// project always allowed (caller doesn't reach here for that case); open
// policy allows; otherwise an approved link is required, falling back to
// auto-handshake if enabled.
func (s *Service) checkContactGate(ctx context.Context, fromProjectID, fromAgentID, toProjectID string, recipient *identity.Agent) (allowed bool, pendingOpened bool, err error) {
	if recipient.ContactPolicy == identity.ContactOpen {
		return true, false, nil
	}

	status, err := s.contacts.LinkStatus(ctx, fromProjectID, fromAgentID, toProjectID, recipient.ID)
	if err != nil {
		return false, false, fmt.Errorf("checking contact link: %w", err)
	}
	switch status {
	case LinkApproved:
		return true, false, nil
	case LinkBlocked:
		return false, false, nil
	}

	if s.cfg.AutoHandshakeOnBlock {
		if err := s.contacts.RequestLink(ctx, fromProjectID, fromAgentID, toProjectID, recipient.ID, "auto-handshake on send"); err != nil {
			return false, false, fmt.Errorf("opening handshake: %w", err)
		}
		return false, true, nil
	}

	return false, false, nil
}

// ReplyRequest describes a reply_message call.
type ReplyRequest struct {
	ProjectKey string
	MessageID  int64
	SenderName string
	BodyMD     string
	To         []string
	CC         []string
	BCC        []string
}

// Reply implements reply_message: a reply inherits the parent's thread and
// subject (prefixed), and defaults recipients to the parent's sender plus
// its other recipients when none are given.
func (s *Service) Reply(ctx context.Context, req ReplyRequest) (*SendResult, error) {
	proj, err := s.projects.GetBySlug(ctx, req.ProjectKey)
	if err != nil {
		return nil, fmt.Errorf("resolving project: %w", err)
	}
	parent, err := s.repo.GetMessage(ctx, proj.ID, req.MessageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("loading parent message: %w", err)
	}

	to := req.To
	if len(to) == 0 {
		parentRecipients, err := s.repo.GetRecipients(ctx, parent.ID)
		if err != nil {
			return nil, fmt.Errorf("loading parent recipients: %w", err)
		}
		to = s.defaultReplyRecipients(parent, parentRecipients)
	}

	subject := parent.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	return s.Send(ctx, SendRequest{
		ProjectKey:  req.ProjectKey,
		SenderName:  req.SenderName,
		To:          to,
		CC:          req.CC,
		BCC:         req.BCC,
		Subject:     subject,
		BodyMD:      req.BodyMD,
		ThreadID:    parent.EffectiveThreadID(),
		Topic:       parent.Topic,
		Importance:  parent.Importance,
		AckRequired: false,
	})
}

func (s *Service) defaultReplyRecipients(parent *Message, recipients []MessageRecipient) []string {
	names := make([]string, 0, len(recipients)+1)
	seen := make(map[string]bool)
	addByID := func(agentID string) {
		if agentID == "" || seen[agentID] {
			return
		}
		seen[agentID] = true
		agent, err := s.agents.GetByID(context.Background(), agentID)
		if err == nil && agent != nil {
			names = append(names, agent.Name)
		}
	}
	addByID(parent.SenderID)
	for _, r := range recipients {
		addByID(r.AgentID)
	}
	return names
}

// FetchInbox implements fetch_inbox.
func (s *Service) FetchInbox(ctx context.Context, projectKey, agentName string, opts InboxOptions) ([]InboxItem, error) {
	proj, err := s.projects.GetBySlug(ctx, projectKey)
	if err != nil {
		return nil, fmt.Errorf("resolving project: %w", err)
	}
	agent, err := s.agents.Whois(ctx, proj.ID, agentName)
	if err != nil {
		return nil, fmt.Errorf("resolving agent: %w", err)
	}
	return s.repo.FetchInbox(ctx, proj.ID, agent.ID, opts)
}

// FetchProductInbox implements the product-scoped form of fetch_inbox: it
// resolves every project linked to the product and merges the named
// agent's inbox across all of them, newest first. A linked project where
// the agent hasn't been seen is skipped rather than failing the whole
// fetch.
func (s *Service) FetchProductInbox(ctx context.Context, productKey, agentName string, opts InboxOptions) ([]InboxItem, error) {
	if s.products == nil {
		return nil, fmt.Errorf("product-scoped inbox requires a product resolver: %w", ErrInvalidInput)
	}
	projectIDs, err := s.products.LinkedProjectIDs(ctx, productKey)
	if err != nil {
		return nil, fmt.Errorf("resolving linked projects: %w", err)
	}

	var merged []InboxItem
	for _, projectID := range projectIDs {
		agent, err := s.agents.Whois(ctx, projectID, agentName)
		if err != nil {
			if errors.Is(err, identity.ErrAgentNotFound) {
				continue
			}
			return nil, fmt.Errorf("resolving agent in project %s: %w", projectID, err)
		}
		items, err := s.repo.FetchInbox(ctx, projectID, agent.ID, opts)
		if err != nil {
			return nil, fmt.Errorf("fetching inbox in project %s: %w", projectID, err)
		}
		merged = append(merged, items...)
	}
	sortInboxItemsNewestFirst(merged)
	if opts.Limit > 0 && len(merged) > opts.Limit {
		merged = merged[:opts.Limit]
	}
	return merged, nil
}

// SearchProduct implements the product-scoped form of search_messages:
// runs the same full-text search across every project linked to the
// product and merges the results, newest first.
func (s *Service) SearchProduct(ctx context.Context, productKey, query string, opts SearchOptions) ([]Message, error) {
	if s.products == nil {
		return nil, fmt.Errorf("product-scoped search requires a product resolver: %w", ErrInvalidInput)
	}
	projectIDs, err := s.products.LinkedProjectIDs(ctx, productKey)
	if err != nil {
		return nil, fmt.Errorf("resolving linked projects: %w", err)
	}

	var merged []Message
	for _, projectID := range projectIDs {
		messages, err := s.repo.Search(ctx, projectID, query, opts)
		if err != nil {
			return nil, fmt.Errorf("searching project %s: %w", projectID, err)
		}
		merged = append(merged, messages...)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].CreatedTS.After(merged[j].CreatedTS) })
	if opts.Limit > 0 && len(merged) > opts.Limit {
		merged = merged[:opts.Limit]
	}
	return merged, nil
}

func sortInboxItemsNewestFirst(items []InboxItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].Message.CreatedTS.After(items[j].Message.CreatedTS) })
}

// ListOutbox implements list_outbox.
func (s *Service) ListOutbox(ctx context.Context, projectKey, agentName string, opts InboxOptions) ([]InboxItem, error) {
	proj, err := s.projects.GetBySlug(ctx, projectKey)
	if err != nil {
		return nil, fmt.Errorf("resolving project: %w", err)
	}
	agent, err := s.agents.Whois(ctx, proj.ID, agentName)
	if err != nil {
		return nil, fmt.Errorf("resolving agent: %w", err)
	}
	return s.repo.ListOutbox(ctx, proj.ID, agent.ID, opts)
}

// MarkRead implements mark_message_read. read_ts must never exceed an
// existing ack_ts (I2); a read after ack is a no-op on the timestamp.
func (s *Service) MarkRead(ctx context.Context, projectKey, agentName string, messageID int64) error {
	proj, err := s.projects.GetBySlug(ctx, projectKey)
	if err != nil {
		return fmt.Errorf("resolving project: %w", err)
	}
	agent, err := s.agents.Whois(ctx, proj.ID, agentName)
	if err != nil {
		return fmt.Errorf("resolving agent: %w", err)
	}
	if err := s.repo.MarkRead(ctx, messageID, agent.ID, time.Now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("marking read: %w", err)
	}
	return nil
}

// Acknowledge implements acknowledge_message. Marks read first if not
// already read, preserving I2 (read_ts <= ack_ts).
func (s *Service) Acknowledge(ctx context.Context, projectKey, agentName string, messageID int64) error {
	proj, err := s.projects.GetBySlug(ctx, projectKey)
	if err != nil {
		return fmt.Errorf("resolving project: %w", err)
	}
	agent, err := s.agents.Whois(ctx, proj.ID, agentName)
	if err != nil {
		return fmt.Errorf("resolving agent: %w", err)
	}
	now := time.Now()
	if err := s.repo.MarkRead(ctx, messageID, agent.ID, now); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("marking read before ack: %w", err)
	}
	if err := s.repo.MarkAcknowledged(ctx, messageID, agent.ID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("acknowledging: %w", err)
	}
	return nil
}

// Search implements search_messages: FTS-first, falling back to
// case-insensitive substring scan at the repository layer.
func (s *Service) Search(ctx context.Context, projectKey, query string, opts SearchOptions) ([]Message, error) {
	proj, err := s.projects.GetBySlug(ctx, projectKey)
	if err != nil {
		return nil, fmt.Errorf("resolving project: %w", err)
	}
	return s.repo.Search(ctx, proj.ID, query, opts)
}

// GetMessage resolves a single message by project and id, for the
// read-only message/<id> resource.
func (s *Service) GetMessage(ctx context.Context, projectKey string, id int64) (*Message, error) {
	proj, err := s.projects.GetBySlug(ctx, projectKey)
	if err != nil {
		return nil, fmt.Errorf("resolving project: %w", err)
	}
	return s.repo.GetMessage(ctx, proj.ID, id)
}

// SummarizeThread implements summarize_thread.
func (s *Service) SummarizeThread(ctx context.Context, projectKey, threadID string) (*ThreadSummary, error) {
	proj, err := s.projects.GetBySlug(ctx, projectKey)
	if err != nil {
		return nil, fmt.Errorf("resolving project: %w", err)
	}
	messages, err := s.repo.ListThread(ctx, proj.ID, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading thread: %w", err)
	}

	senderNames := make(map[string]string, len(messages))
	for _, msg := range messages {
		if _, ok := senderNames[msg.SenderID]; ok {
			continue
		}
		agent, err := s.agents.GetByID(ctx, msg.SenderID)
		if err == nil && agent != nil {
			senderNames[msg.SenderID] = agent.Name
		}
	}

	summary := SummarizeThread(threadID, messages, senderNames)
	return &summary, nil
}

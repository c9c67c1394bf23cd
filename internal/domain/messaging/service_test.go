package messaging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentcoord/coordbus/internal/domain/identity"
	"github.com/agentcoord/coordbus/internal/domain/messaging"
	"github.com/agentcoord/coordbus/internal/domain/project"
	"github.com/agentcoord/coordbus/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeProjects struct {
	bySlug map[string]*project.Project
}

func (f *fakeProjects) GetBySlug(ctx context.Context, slugOrKey string) (*project.Project, error) {
	if p, ok := f.bySlug[slugOrKey]; ok {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeProjects) GetByID(ctx context.Context, id string) (*project.Project, error) {
	for _, p := range f.bySlug {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

type fakeAgents struct {
	byKey map[string]*identity.Agent
	byID  map[string]*identity.Agent
}

func newFakeAgents() *fakeAgents {
	return &fakeAgents{byKey: map[string]*identity.Agent{}, byID: map[string]*identity.Agent{}}
}

func (f *fakeAgents) add(a *identity.Agent) {
	f.byKey[a.ProjectID+"/"+a.Name] = a
	f.byID[a.ID] = a
}

func (f *fakeAgents) Whois(ctx context.Context, projectID, name string) (*identity.Agent, error) {
	if a, ok := f.byKey[projectID+"/"+name]; ok {
		return a, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAgents) GetByID(ctx context.Context, agentID string) (*identity.Agent, error) {
	if a, ok := f.byID[agentID]; ok {
		return a, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAgents) ResolveOrAutoCreate(ctx context.Context, projectID, name string, autoCreate bool) (*identity.Agent, error) {
	if a, err := f.Whois(ctx, projectID, name); err == nil {
		return a, nil
	}
	if !autoCreate {
		return nil, repository.ErrNotFound
	}
	a := &identity.Agent{ID: uuid.NewString(), ProjectID: projectID, Name: name, ContactPolicy: identity.ContactAuto}
	f.add(a)
	return a, nil
}

func (f *fakeAgents) TouchLastActive(ctx context.Context, agentID string) error { return nil }

type fakeMessageRepo struct {
	messages   map[int64]*messaging.Message
	recipients map[int64][]messaging.MessageRecipient
	nextID     int64
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: map[int64]*messaging.Message{}, recipients: map[int64][]messaging.MessageRecipient{}}
}

func (f *fakeMessageRepo) InsertMessage(ctx context.Context, msg *messaging.Message, recipients []messaging.MessageRecipient) error {
	f.nextID++
	msg.ID = f.nextID
	cp := *msg
	f.messages[msg.ID] = &cp
	rs := make([]messaging.MessageRecipient, len(recipients))
	for i, r := range recipients {
		r.MessageID = msg.ID
		rs[i] = r
	}
	f.recipients[msg.ID] = rs
	return nil
}

func (f *fakeMessageRepo) GetMessage(ctx context.Context, projectID string, id int64) (*messaging.Message, error) {
	if m, ok := f.messages[id]; ok {
		return m, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeMessageRepo) GetRecipients(ctx context.Context, messageID int64) ([]messaging.MessageRecipient, error) {
	return f.recipients[messageID], nil
}

func (f *fakeMessageRepo) MarkRead(ctx context.Context, messageID int64, agentID string, at time.Time) error {
	return nil
}
func (f *fakeMessageRepo) MarkAcknowledged(ctx context.Context, messageID int64, agentID string, at time.Time) error {
	return nil
}

func (f *fakeMessageRepo) FetchInbox(ctx context.Context, projectID, agentID string, opts messaging.InboxOptions) ([]messaging.InboxItem, error) {
	var items []messaging.InboxItem
	for id, rs := range f.recipients {
		for _, r := range rs {
			if r.AgentID == agentID {
				items = append(items, messaging.InboxItem{Message: *f.messages[id], Recipient: r})
			}
		}
	}
	return items, nil
}

func (f *fakeMessageRepo) ListOutbox(ctx context.Context, projectID, agentID string, opts messaging.InboxOptions) ([]messaging.InboxItem, error) {
	return nil, nil
}
func (f *fakeMessageRepo) ListThread(ctx context.Context, projectID, threadID string) ([]messaging.Message, error) {
	return nil, nil
}
func (f *fakeMessageRepo) Search(ctx context.Context, projectID, query string, opts messaging.SearchOptions) ([]messaging.Message, error) {
	return nil, nil
}

func (f *fakeMessageRepo) ListOverdueAcks(ctx context.Context, cutoff time.Time) ([]messaging.InboxItem, error) {
	var items []messaging.InboxItem
	for id, msg := range f.messages {
		if !msg.AckRequired || msg.CreatedTS.After(cutoff) {
			continue
		}
		for _, rec := range f.recipients[id] {
			if rec.AckTS == nil {
				items = append(items, messaging.InboxItem{Message: *msg, Recipient: rec})
			}
		}
	}
	return items, nil
}

type fakeContacts struct {
	statuses map[string]messaging.LinkStatus
	requests []string
}

func newFakeContacts() *fakeContacts {
	return &fakeContacts{statuses: map[string]messaging.LinkStatus{}}
}

func (f *fakeContacts) LinkStatus(ctx context.Context, fromProjectID, fromAgentID, toProjectID, toAgentID string) (messaging.LinkStatus, error) {
	return f.statuses[fromAgentID+"->"+toAgentID], nil
}

func (f *fakeContacts) RequestLink(ctx context.Context, fromProjectID, fromAgentID, toProjectID, toAgentID, reason string) error {
	f.requests = append(f.requests, fromAgentID+"->"+toAgentID)
	return nil
}

type fakeReservations struct {
	conflicts []messaging.PathConflict
}

func (f *fakeReservations) CheckConflicts(ctx context.Context, projectID, actingAgentID string, paths []string) ([]messaging.PathConflict, error) {
	return f.conflicts, nil
}

type fakeArchive struct {
	writes int
}

func (f *fakeArchive) WriteMessage(ctx context.Context, input messaging.ArchiveMessageInput) error {
	f.writes++
	return nil
}
func (f *fakeArchive) WriteSystemNotification(ctx context.Context, input messaging.ArchiveMessageInput) error {
	f.writes++
	return nil
}

func newTestService(t *testing.T, projects *fakeProjects, agents *fakeAgents, contacts *fakeContacts, reservations *fakeReservations) (*messaging.Service, *fakeMessageRepo, *fakeArchive) {
	t.Helper()
	repo := newFakeMessageRepo()
	archive := &fakeArchive{}
	svc := messaging.NewService(repo, agents, projects, nil, contacts, reservations, archive, nil, messaging.Config{
		AutoRegisterRecipients: false,
		AutoHandshakeOnBlock:   false,
	}, nil)
	return svc, repo, archive
}

func TestSendBasicDelivers(t *testing.T) {
	ctx := context.Background()
	backend := &project.Project{ID: uuid.NewString(), Slug: "backend"}
	projects := &fakeProjects{bySlug: map[string]*project.Project{"/backend": backend, "backend": backend}}
	agents := newFakeAgents()
	blueLake := &identity.Agent{ID: uuid.NewString(), ProjectID: backend.ID, Name: "BlueLake", ContactPolicy: identity.ContactAuto}
	agents.add(blueLake)

	svc, repo, archive := newTestService(t, projects, agents, newFakeContacts(), &fakeReservations{})

	result, err := svc.Send(ctx, messaging.SendRequest{
		ProjectKey: "/backend",
		SenderName: "BlueLake",
		To:         []string{"BlueLake"},
		Subject:    "Test",
		BodyMD:     "hello",
	})
	require.NoError(t, err)
	require.Len(t, result.Deliveries, 1)
	require.Equal(t, "Test", result.Deliveries[0].Payload.Subject)
	require.Equal(t, 1, archive.writes)

	inbox, err := svc.FetchInbox(ctx, "/backend", "BlueLake", messaging.InboxOptions{})
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.Equal(t, "Test", inbox[0].Message.Subject)
	require.Len(t, repo.recipients[1], 1)
}

func TestSendFailsOnReservationConflict(t *testing.T) {
	ctx := context.Background()
	backend := &project.Project{ID: uuid.NewString(), Slug: "backend"}
	projects := &fakeProjects{bySlug: map[string]*project.Project{"/backend": backend}}
	agents := newFakeAgents()
	agents.add(&identity.Agent{ID: uuid.NewString(), ProjectID: backend.ID, Name: "GreenCastle", ContactPolicy: identity.ContactAuto})
	agents.add(&identity.Agent{ID: uuid.NewString(), ProjectID: backend.ID, Name: "BlueLake", ContactPolicy: identity.ContactAuto})

	reservations := &fakeReservations{conflicts: []messaging.PathConflict{{
		Pattern: "agents/GreenCastle/inbox/*/*/*.md",
		Holders: []messaging.ConflictHolder{{Agent: "BlueLake", Pattern: "agents/GreenCastle/inbox/*/*/*.md"}},
	}}}

	svc, _, _ := newTestService(t, projects, agents, newFakeContacts(), reservations)

	_, err := svc.Send(ctx, messaging.SendRequest{
		ProjectKey: "/backend",
		SenderName: "GreenCastle",
		To:         []string{"GreenCastle"},
		Subject:    "Blocked",
		BodyMD:     "hi",
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, messaging.ErrFileReservationConflict))
	var conflictErr *messaging.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, conflictErr.Conflicts, 1)
}

func TestCrossProjectSendRequiresContact(t *testing.T) {
	ctx := context.Background()
	alpha := &project.Project{ID: uuid.NewString(), Slug: "alpha"}
	beta := &project.Project{ID: uuid.NewString(), Slug: "beta"}
	projects := &fakeProjects{bySlug: map[string]*project.Project{"/alpha": alpha, "/beta": beta, "beta": beta}}

	agents := newFakeAgents()
	blueLake := &identity.Agent{ID: uuid.NewString(), ProjectID: alpha.ID, Name: "BlueLake", ContactPolicy: identity.ContactAuto}
	purpleBear := &identity.Agent{ID: uuid.NewString(), ProjectID: beta.ID, Name: "PurpleBear", ContactPolicy: identity.ContactContactsOnly}
	agents.add(blueLake)
	agents.add(purpleBear)

	contacts := newFakeContacts()
	svc, _, _ := newTestService(t, projects, agents, contacts, &fakeReservations{})

	_, err := svc.Send(ctx, messaging.SendRequest{
		ProjectKey: "/alpha",
		SenderName: "BlueLake",
		To:         []string{"PurpleBear@beta"},
		Subject:    "Cross",
		BodyMD:     "x",
	})
	require.ErrorIs(t, err, messaging.ErrContactRequired)

	contacts.statuses[blueLake.ID+"->"+purpleBear.ID] = messaging.LinkApproved
	result, err := svc.Send(ctx, messaging.SendRequest{
		ProjectKey: "/alpha",
		SenderName: "BlueLake",
		To:         []string{"PurpleBear@beta"},
		Subject:    "Cross",
		BodyMD:     "x",
	})
	require.NoError(t, err)
	require.Len(t, result.Deliveries, 1)
}

func TestCrossProjectSendAutoHandshake(t *testing.T) {
	ctx := context.Background()
	alpha := &project.Project{ID: uuid.NewString(), Slug: "alpha"}
	beta := &project.Project{ID: uuid.NewString(), Slug: "beta"}
	projects := &fakeProjects{bySlug: map[string]*project.Project{"/alpha": alpha, "beta": beta}}

	agents := newFakeAgents()
	blueLake := &identity.Agent{ID: uuid.NewString(), ProjectID: alpha.ID, Name: "BlueLake"}
	purpleBear := &identity.Agent{ID: uuid.NewString(), ProjectID: beta.ID, Name: "PurpleBear", ContactPolicy: identity.ContactContactsOnly}
	agents.add(blueLake)
	agents.add(purpleBear)

	contacts := newFakeContacts()
	repo := newFakeMessageRepo()
	archive := &fakeArchive{}
	svc := messaging.NewService(repo, agents, projects, nil, contacts, &fakeReservations{}, archive, nil, messaging.Config{
		AutoHandshakeOnBlock: true,
	}, nil)

	_, err := svc.Send(ctx, messaging.SendRequest{
		ProjectKey: "/alpha",
		SenderName: "BlueLake",
		To:         []string{"PurpleBear@beta"},
		Subject:    "Cross",
		BodyMD:     "x",
	})
	require.ErrorIs(t, err, messaging.ErrContactPending)
	require.Len(t, contacts.requests, 1)
}

func TestSendSystemNotificationAutoCreatesSystemSenderAndDelivers(t *testing.T) {
	ctx := context.Background()
	backend := &project.Project{ID: uuid.NewString(), Slug: "backend"}
	projects := &fakeProjects{bySlug: map[string]*project.Project{"backend": backend}}
	agents := newFakeAgents()
	blueLake := &identity.Agent{ID: uuid.NewString(), ProjectID: backend.ID, Name: "BlueLake"}
	agents.add(blueLake)

	svc, repo, archive := newTestService(t, projects, agents, newFakeContacts(), &fakeReservations{})

	err := svc.SendSystemNotification(ctx, backend.ID, blueLake.ID, "Released stale lock: src/app.py", "details")
	require.NoError(t, err)
	require.Equal(t, 1, archive.writes)

	inbox, err := svc.FetchInbox(ctx, "backend", "BlueLake", messaging.InboxOptions{})
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.Equal(t, "Released stale lock: src/app.py", inbox[0].Message.Subject)
	require.Equal(t, repo.messages[1].SenderID, agents.byKey[backend.ID+"/system"].ID)
}

func TestThreadDefaultsToSingleton(t *testing.T) {
	msg := messaging.Message{ID: 42}
	require.Equal(t, "msg:42", msg.EffectiveThreadID())
}

func TestParseRecipientGrammar(t *testing.T) {
	require.Equal(t, messaging.RecipientRef{AgentName: "BlueLake"}, messaging.ParseRecipient("BlueLake"))
	require.Equal(t, messaging.RecipientRef{ProjectRef: "beta", AgentName: "PurpleBear"}, messaging.ParseRecipient("PurpleBear@beta"))
	require.Equal(t, messaging.RecipientRef{ProjectRef: "beta", AgentName: "PurpleBear"}, messaging.ParseRecipient("project:beta#PurpleBear"))
}

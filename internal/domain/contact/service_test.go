package contact_test

import (
	"context"
	"testing"
	"time"

	"github.com/agentcoord/coordbus/internal/domain/contact"
	"github.com/agentcoord/coordbus/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	byDirection map[string]*contact.AgentLink
}

func newFakeRepo() *fakeRepo { return &fakeRepo{byDirection: map[string]*contact.AgentLink{}} }

func key(aProjectID, aAgentID, bProjectID, bAgentID string) string {
	return aProjectID + "|" + aAgentID + "|" + bProjectID + "|" + bAgentID
}

func (f *fakeRepo) Upsert(ctx context.Context, link *contact.AgentLink) error {
	cp := *link
	f.byDirection[key(link.AProjectID, link.AAgentID, link.BProjectID, link.BAgentID)] = &cp
	return nil
}

func (f *fakeRepo) GetDirected(ctx context.Context, aProjectID, aAgentID, bProjectID, bAgentID string) (*contact.AgentLink, error) {
	link, ok := f.byDirection[key(aProjectID, aAgentID, bProjectID, bAgentID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *link
	return &cp, nil
}

func (f *fakeRepo) ListOutbound(ctx context.Context, projectID, agentID string) ([]contact.AgentLink, error) {
	var out []contact.AgentLink
	for _, link := range f.byDirection {
		if link.AProjectID == projectID && link.AAgentID == agentID {
			out = append(out, *link)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	sent []string
}

func (f *fakeNotifier) SendSystemNotification(ctx context.Context, projectID, recipientAgentID, subject, body string) error {
	f.sent = append(f.sent, subject)
	return nil
}

func newTestService(cfg contact.Config) (*contact.Service, *fakeRepo, *fakeNotifier) {
	repo := newFakeRepo()
	notifier := &fakeNotifier{}
	svc := contact.NewService(repo, notifier, cfg, nil)
	return svc, repo, notifier
}

func TestRequestContactCreatesPendingLinkAndNotifies(t *testing.T) {
	ctx := context.Background()
	fromProject, toProject := uuid.NewString(), uuid.NewString()
	svc, _, notifier := newTestService(contact.Config{})

	link, err := svc.RequestContact(ctx, fromProject, "blue-lake", toProject, "green-castle", "need to coordinate on shared config")
	require.NoError(t, err)
	require.Equal(t, contact.StatusPending, link.Status)
	require.Len(t, notifier.sent, 1)
	require.Contains(t, notifier.sent[0], "Contact request")

	status, err := svc.LinkStatus(ctx, fromProject, "blue-lake", toProject, "green-castle")
	require.NoError(t, err)
	require.Equal(t, contact.StatusPending, status, "pending links do not yet grant delivery")
}

func TestRespondContactAcceptGrantsDeliveryUntilExpiry(t *testing.T) {
	ctx := context.Background()
	fromProject, toProject := uuid.NewString(), uuid.NewString()
	svc, _, _ := newTestService(contact.Config{AutoTTLSeconds: 3600})

	_, err := svc.RequestContact(ctx, fromProject, "blue-lake", toProject, "green-castle", "reason")
	require.NoError(t, err)

	link, err := svc.RespondContact(ctx, fromProject, "blue-lake", toProject, "green-castle", true, 0)
	require.NoError(t, err)
	require.Equal(t, contact.StatusApproved, link.Status)
	require.NotNil(t, link.ExpiresTS)

	status, err := svc.LinkStatus(ctx, fromProject, "blue-lake", toProject, "green-castle")
	require.NoError(t, err)
	require.Equal(t, contact.StatusApproved, status)
}

func TestRespondContactBlockDeniesDelivery(t *testing.T) {
	ctx := context.Background()
	fromProject, toProject := uuid.NewString(), uuid.NewString()
	svc, _, _ := newTestService(contact.Config{})

	_, err := svc.RequestContact(ctx, fromProject, "blue-lake", toProject, "green-castle", "reason")
	require.NoError(t, err)

	link, err := svc.RespondContact(ctx, fromProject, "blue-lake", toProject, "green-castle", false, 0)
	require.NoError(t, err)
	require.Equal(t, contact.StatusBlocked, link.Status)

	status, err := svc.LinkStatus(ctx, fromProject, "blue-lake", toProject, "green-castle")
	require.NoError(t, err)
	require.Equal(t, contact.StatusBlocked, status)
}

func TestRespondContactUnknownLinkFails(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(contact.Config{})

	_, err := svc.RespondContact(ctx, uuid.NewString(), "blue-lake", uuid.NewString(), "green-castle", true, 0)
	require.ErrorIs(t, err, contact.ErrLinkNotFound)
}

func TestApprovedLinkExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	fromProject, toProject := uuid.NewString(), uuid.NewString()
	svc, repo, _ := newTestService(contact.Config{})

	_, err := svc.RequestContact(ctx, fromProject, "blue-lake", toProject, "green-castle", "reason")
	require.NoError(t, err)
	_, err = svc.RespondContact(ctx, fromProject, "blue-lake", toProject, "green-castle", true, 60)
	require.NoError(t, err)

	link := repo.byDirection[key(fromProject, "blue-lake", toProject, "green-castle")]
	expired := time.Now().Add(-time.Hour)
	link.ExpiresTS = &expired

	status, err := svc.LinkStatus(ctx, fromProject, "blue-lake", toProject, "green-castle")
	require.NoError(t, err)
	require.Empty(t, status, "expired links no longer grant delivery")
}

func TestListContactsReturnsOutboundLinks(t *testing.T) {
	ctx := context.Background()
	fromProject, toProject := uuid.NewString(), uuid.NewString()
	svc, _, _ := newTestService(contact.Config{})

	_, err := svc.RequestContact(ctx, fromProject, "blue-lake", toProject, "green-castle", "reason")
	require.NoError(t, err)

	links, err := svc.ListContacts(ctx, fromProject, "blue-lake")
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, "green-castle", links[0].BAgentID)
}

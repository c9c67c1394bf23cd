// Package testserver boots the full coordbus stack against an in-memory
// catalog and a temp-dir archive root, for functional and integration
// tests that exercise tools end to end instead of mocking domain services.
package testserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentcoord/coordbus/internal/archive"
	"github.com/agentcoord/coordbus/internal/config"
	"github.com/agentcoord/coordbus/internal/domain/contact"
	"github.com/agentcoord/coordbus/internal/domain/identity"
	"github.com/agentcoord/coordbus/internal/domain/messaging"
	"github.com/agentcoord/coordbus/internal/domain/product"
	"github.com/agentcoord/coordbus/internal/domain/project"
	"github.com/agentcoord/coordbus/internal/domain/reservation"
	"github.com/agentcoord/coordbus/internal/matching"
	"github.com/agentcoord/coordbus/internal/mcp"
	"github.com/agentcoord/coordbus/internal/metrics"
	"github.com/agentcoord/coordbus/internal/sqlite"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

type TransportMode string

const (
	TransportHTTP  TransportMode = "http"
	TransportStdio TransportMode = "stdio"
)

// TestServer wires the same dependency graph cmd/server/main.go builds,
// minus process bootstrap (logging to a file, signal handling): one
// in-memory sqlite catalog, a git archive under a temp directory, and
// every domain service feeding a single MCP server.
type TestServer struct {
	Server     *httptest.Server // non-nil only in TransportHTTP mode
	DB         *sqlite.DB
	MCP        *sdkmcp.Server
	Mode       TransportMode
	StorageDir string
}

func New(t *testing.T) *TestServer {
	return NewWithTransport(t, TransportHTTP)
}

func NewWithTransport(t *testing.T, mode TransportMode) *TestServer {
	t.Helper()

	db, err := sqlite.New(":memory:", sqlite.Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.RunMigrations())

	storageDir := t.TempDir()

	projectRepo := sqlite.NewProjectRepository(db)
	agentRepo := sqlite.NewAgentRepository(db)
	windowRepo := sqlite.NewWindowRepository(db)
	messageRepo := sqlite.NewMessageRepository(db)
	reservationRepo := sqlite.NewReservationRepository(db)
	contactRepo := sqlite.NewContactRepository(db)
	productRepo := sqlite.NewProductRepository(db)

	gitArchive := archive.New(storageDir, nil)
	blobStore := archive.NewBlobStore(storageDir)
	matcher := matching.NewMatcher(false)
	recorder := metrics.NewRecorder()

	projectSvc := project.NewService(projectRepo, nil, nil, nil)
	identitySvc := identity.NewService(agentRepo, windowRepo, nil, nil)

	reservationNotifier := &lazyNotifier{}
	contactNotifier := &lazyNotifier{}

	reservationSvc := reservation.NewService(
		reservationRepo, matcher, identitySvc, projectSvc, reservationNotifier, gitArchive,
		reservation.Config{InactivitySeconds: 300, ActivityGraceSeconds: 60},
		nil,
	)

	contactSvc := contact.NewService(contactRepo, contactNotifier, contact.Config{AutoTTLSeconds: 3600}, nil)

	productSvc := product.NewService(productRepo, &productProjectResolverAdapter{projects: projectSvc}, nil)

	messagingSvc := messaging.NewService(
		messageRepo, identitySvc, projectSvc, productSvc,
		&contactGateAdapter{contacts: contactSvc},
		&reservationGateAdapter{reservations: reservationSvc},
		gitArchive, blobStore,
		messaging.Config{AutoRegisterRecipients: true},
		nil,
	)

	reservationNotifier.target = messagingSvc
	contactNotifier.target = messagingSvc

	mcpServer := mcp.NewServer(mcp.ServerConfig{
		Services: mcp.Services{
			Projects:     projectSvc,
			Identity:     identitySvc,
			Messaging:    messagingSvc,
			Reservations: reservationSvc,
			Contacts:     contactSvc,
			Products:     productSvc,
		},
		Tools:       config.ToolsConfig{Profile: "full", CallTimeoutSeconds: 30},
		CallTimeout: 30 * time.Second,
		Recorder:    recorder,
	})

	ts := &TestServer{DB: db, MCP: mcpServer, Mode: mode, StorageDir: storageDir}

	if mode == TransportHTTP {
		mcpHandler := sdkmcp.NewStreamableHTTPHandler(
			func(r *http.Request) *sdkmcp.Server { return mcpServer },
			&sdkmcp.StreamableHTTPOptions{Stateless: true, JSONResponse: true},
		)
		server := httptest.NewServer(mcpHandler)
		ts.Server = server
		t.Cleanup(server.Close)
	}

	return ts
}

// contactGateAdapter, reservationGateAdapter, productProjectResolverAdapter,
// and lazyNotifier mirror cmd/server/main.go's adapters: they keep the
// domain packages free of import cycles on each other, here as in
// production wiring.

type contactGateAdapter struct {
	contacts *contact.Service
}

func (a *contactGateAdapter) LinkStatus(ctx context.Context, fromProjectID, fromAgentID, toProjectID, toAgentID string) (messaging.LinkStatus, error) {
	status, err := a.contacts.LinkStatus(ctx, fromProjectID, fromAgentID, toProjectID, toAgentID)
	if err != nil {
		return messaging.LinkNone, err
	}
	return messaging.LinkStatus(status), nil
}

func (a *contactGateAdapter) RequestLink(ctx context.Context, fromProjectID, fromAgentID, toProjectID, toAgentID, reason string) error {
	_, err := a.contacts.RequestContact(ctx, fromProjectID, fromAgentID, toProjectID, toAgentID, reason)
	return err
}

type reservationGateAdapter struct {
	reservations *reservation.Service
}

func (a *reservationGateAdapter) CheckConflicts(ctx context.Context, projectID, actingAgentID string, paths []string) ([]messaging.PathConflict, error) {
	conflicts, err := a.reservations.CheckConflicts(ctx, projectID, actingAgentID, paths)
	if err != nil {
		return nil, err
	}
	out := make([]messaging.PathConflict, len(conflicts))
	for i, c := range conflicts {
		holders := make([]messaging.ConflictHolder, len(c.Holders))
		for j, h := range c.Holders {
			holders[j] = messaging.ConflictHolder{Agent: h.Agent, Pattern: h.Pattern, ExpiresTS: h.ExpiresTS, ID: h.ID}
		}
		out[i] = messaging.PathConflict{Pattern: c.Pattern, Holders: holders}
	}
	return out, nil
}

type productProjectResolverAdapter struct {
	projects *project.Service
}

func (a *productProjectResolverAdapter) GetBySlug(ctx context.Context, slugOrKey string) (product.ProjectRef, error) {
	proj, err := a.projects.GetBySlug(ctx, slugOrKey)
	if err != nil {
		return product.ProjectRef{}, err
	}
	return product.ProjectRef{ID: proj.ID, Slug: proj.Slug}, nil
}

// lazyNotifier defers to target, set once messagingSvc exists, breaking
// the reservation/contact -> messaging -> reservation/contact cycle.
type lazyNotifier struct {
	target *messaging.Service
}

func (n *lazyNotifier) SendSystemNotification(ctx context.Context, projectID, recipientAgentID, subject, body string) error {
	if n.target == nil {
		return nil
	}
	return n.target.SendSystemNotification(ctx, projectID, recipientAgentID, subject, body)
}

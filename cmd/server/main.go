package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
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
	transportpkg "github.com/agentcoord/coordbus/internal/transport"
	"github.com/agentcoord/coordbus/internal/workers"
	"github.com/agentcoord/coordbus/migrations"
	"github.com/go-chi/chi/v5"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if cfg.Log.Path != "" {
		fileWriter, file, err := newLogFileWriter(cfg.Log.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer file.Close()
			logWriter = fileWriter
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		logger.Error("failed to prepare database path", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DB.Path, sqlite.Config{}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runEmbeddedMigrations(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Storage.Root, 0o755); err != nil {
		logger.Error("failed to prepare storage root", "error", err)
		os.Exit(1)
	}

	// Catalog repositories: one per domain package's Repository port.
	projectRepo := sqlite.NewProjectRepository(db)
	agentRepo := sqlite.NewAgentRepository(db)
	windowRepo := sqlite.NewWindowRepository(db)
	messageRepo := sqlite.NewMessageRepository(db)
	reservationRepo := sqlite.NewReservationRepository(db)
	contactRepo := sqlite.NewContactRepository(db)
	productRepo := sqlite.NewProductRepository(db)

	// Archive: the Git journal, repo cache, and shared attachment blob store.
	gitArchive := archive.New(cfg.Storage.Root, logger)
	blobStore := archive.NewBlobStore(cfg.Storage.Root)
	matcher := matching.NewMatcher(false)

	recorder := metrics.NewRecorder()

	// Domain services, wired in dependency order: identity and project have
	// none; reservation and contact depend on identity/project plus the
	// archive; messaging depends on all of them plus the gates adapted
	// below to keep the domain packages free of import cycles.
	adoptStore := sqlite.NewAdoptStore(db)
	projectSvc := project.NewService(projectRepo, adoptStore, gitArchive, logger)
	identitySvc := identity.NewService(agentRepo, windowRepo, identity.NewGitCommitHistory(), logger)

	// reservation and contact each need a NotificationSender to deliver
	// system messages, but that sender is the messaging service, which in
	// turn needs both of them as gates. lazyNotifier breaks the cycle: it
	// is constructed empty and pointed at messagingSvc once that exists.
	reservationNotifier := &lazyNotifier{}
	contactNotifier := &lazyNotifier{}

	reservationSvc := reservation.NewService(
		reservationRepo, matcher, identitySvc, projectSvc, reservationNotifier, gitArchive,
		reservation.Config{
			InactivitySeconds:    int64(cfg.Reservation.InactivitySeconds),
			ActivityGraceSeconds: int64(cfg.Reservation.ActivityGraceSeconds),
		},
		logger,
	)

	contactSvc := contact.NewService(contactRepo, contactNotifier, contact.Config{
		AutoTTLSeconds: int64(cfg.Contact.AutoTTLSeconds),
	}, logger)

	var contactGate messaging.ContactGate = &contactGateAdapter{contacts: contactSvc}
	if !cfg.Contact.EnforcementEnabled {
		contactGate = openContactGate{}
	}
	var reservationGate messaging.ReservationGate = &reservationGateAdapter{reservations: reservationSvc}
	if !cfg.Reservation.EnforcementEnabled {
		reservationGate = noConflictReservationGate{}
	}

	productSvc := product.NewService(productRepo, &productProjectResolverAdapter{projects: projectSvc}, logger)

	messagingSvc := messaging.NewService(
		messageRepo, identitySvc, projectSvc, productSvc,
		contactGate, reservationGate,
		gitArchive, blobStore,
		messaging.Config{
			AutoRegisterRecipients: cfg.Messaging.AutoRegisterRecipients,
			AutoHandshakeOnBlock:   cfg.Messaging.AutoHandshakeOnBlock,
			AttachmentPolicy: messaging.AttachmentPolicy{
				InlineMaxBytes:     int64(cfg.Storage.InlineImageMaxBytes),
				ConvertImages:      cfg.Storage.ConvertImages,
				KeepOriginalImages: cfg.Storage.KeepOriginalImages,
				StrictAttachments:  cfg.Storage.StrictAttachments,
			},
		},
		logger,
	)

	// The reservation and contact engines notify through the messaging
	// engine (system messages) without importing it directly; wire that
	// dependency now that messagingSvc exists.
	reservationNotifier.target = messagingSvc
	contactNotifier.target = messagingSvc

	scheduler := workers.NewScheduler(logger)
	if cfg.Reservation.CleanupEnabled {
		scheduler.AddJob(workers.NewReservationSweepJob(reservationSvc, logger),
			time.Duration(cfg.Reservation.CleanupIntervalSeconds)*time.Second)
	}
	if cfg.Ack.TTLEnabled {
		scheduler.AddJob(workers.NewAckTTLJob(messageRepo, identitySvc, projectSvc, reservationSvc,
			workers.AckTTLConfig{
				AckTTL:                   time.Duration(cfg.Ack.TTLSeconds) * time.Second,
				EscalationEnabled:        cfg.Ack.EscalationEnabled,
				EscalationReservationTTL: time.Hour,
			}, logger), time.Duration(cfg.Ack.ScanIntervalSeconds)*time.Second)
	}
	scheduler.AddJob(workers.NewFDHealthJob(gitArchive.RepoCache(), workers.DefaultFDHealthConfig(), logger), 30*time.Second)
	scheduler.AddJob(workers.NewRetentionReportJob(projectSvc, gitArchive, workers.RetentionConfig{}, logger), time.Hour)
	scheduler.AddJob(workers.NewToolMetricsJob(recorder, logger), 5*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler.Start(ctx)
	defer scheduler.Stop()

	mcpServer := mcp.NewServer(mcp.ServerConfig{
		Services: mcp.Services{
			Projects:     projectSvc,
			Identity:     identitySvc,
			Messaging:    messagingSvc,
			Reservations: reservationSvc,
			Contacts:     contactSvc,
			Products:     productSvc,
		},
		Tools:       cfg.Tools,
		CallTimeout: time.Duration(cfg.Tools.CallTimeoutSeconds) * time.Second,
		Recorder:    recorder,
		Logger:      logger,
	})

	if cfg.Transport.Mode == "stdio" {
		runStdioMode(ctx, cancel, logger, mcpServer)
	} else {
		resourceRouter := transportpkg.NewRouter(transportpkg.Services{
			Projects:     projectSvc,
			Messages:     messagingSvc,
			Mailboxes:    messagingSvc,
			Reservations: reservationSvc,
		})
		runHTTPMode(logger, mcpServer, resourceRouter, cfg.Server.Host, cfg.Server.Port)
	}
}

func runStdioMode(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, mcpServer *sdkmcp.Server) {
	logger.Info("starting stdio transport")

	transport := &sdkmcp.StdioTransport{}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	// Run blocks until stdin closes or context is canceled.
	if err := mcpServer.Run(ctx, transport); err != nil {
		logger.Error("stdio server error", "error", err)
		os.Exit(1)
	}
}

func runHTTPMode(logger *slog.Logger, mcpServer *sdkmcp.Server, resources *chi.Mux, host string, port int) {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)

	router := http.NewServeMux()
	router.Handle("/mcp", mcpHandler)
	router.Handle("/mcp/", mcpHandler)
	router.Handle("/resources/", resources)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(logger, httpServer)
}

func runEmbeddedMigrations(db *sqlite.DB) error {
	data, err := migrations.FS.ReadFile("001_initial_schema.up.sql")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	if _, err := db.Exec(string(data)); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func waitForShutdown(logger *slog.Logger, server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const (
	maxLogSizeBytes  = 6 * 1024 * 1024
	keepLogSizeBytes = 5 * 1024 * 1024
)

type logFileWriter struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func newLogFileWriter(path string) (*logFileWriter, *os.File, error) {
	if err := ensureLogDir(path); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	writer := &logFileWriter{path: path, file: file}
	if err := writer.truncateIfNeeded(); err != nil {
		return nil, nil, err
	}
	return writer, file, nil
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (w *logFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.truncateIfNeeded(); err != nil {
		return n, err
	}
	return n, nil
}

func (w *logFileWriter) truncateIfNeeded() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size <= maxLogSizeBytes {
		return nil
	}
	if size <= keepLogSizeBytes {
		return nil
	}

	buf := make([]byte, keepLogSizeBytes)
	if _, err := w.file.Seek(size-keepLogSizeBytes, io.SeekStart); err != nil {
		return err
	}
	n, err := w.file.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	buf = buf[:n]

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.file.Write(buf); err != nil {
		return err
	}
	_, err = w.file.Seek(0, io.SeekEnd)
	return err
}

// contactGateAdapter narrows *contact.Service to messaging.ContactGate,
// translating contact.LinkStatus's values into messaging's own copy of
// the same enum so the two domain packages don't import each other.
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

// reservationGateAdapter narrows *reservation.Service to
// messaging.ReservationGate, reshaping reservation.Conflict into
// messaging.PathConflict (identical fields, distinct types per package).
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

// openContactGate stands in for contactGateAdapter when contact
// enforcement is disabled: every cross-project send is treated as
// pre-approved and request_contact is never invoked.
type openContactGate struct{}

func (openContactGate) LinkStatus(ctx context.Context, fromProjectID, fromAgentID, toProjectID, toAgentID string) (messaging.LinkStatus, error) {
	return messaging.LinkApproved, nil
}

func (openContactGate) RequestLink(ctx context.Context, fromProjectID, fromAgentID, toProjectID, toAgentID, reason string) error {
	return nil
}

// noConflictReservationGate stands in for reservationGateAdapter when
// reservation enforcement is disabled: sends never report path conflicts.
type noConflictReservationGate struct{}

func (noConflictReservationGate) CheckConflicts(ctx context.Context, projectID, actingAgentID string, paths []string) ([]messaging.PathConflict, error) {
	return nil, nil
}

// productProjectResolverAdapter narrows *project.Service to
// product.ProjectResolver, which resolves to the minimal ProjectRef the
// product package needs rather than the full project.Project.
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

// lazyNotifier defers to target, set once the messaging service it wraps
// has been constructed. Satisfies both contact.NotificationSender and
// reservation.NotificationSender (same method signature).
type lazyNotifier struct {
	target *messaging.Service
}

func (n *lazyNotifier) SendSystemNotification(ctx context.Context, projectID, recipientAgentID, subject, body string) error {
	if n.target == nil {
		return nil
	}
	return n.target.SendSystemNotification(ctx, projectID, recipientAgentID, subject, body)
}

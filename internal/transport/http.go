// Package transport exposes the read-only resource surface: a handful of
// GET endpoints that mirror state already reachable through MCP tools, for
// operators and dashboards that want to poll a project's state over plain
// HTTP instead of speaking MCP.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/agentcoord/coordbus/internal/domain/messaging"
	"github.com/agentcoord/coordbus/internal/domain/project"
	"github.com/agentcoord/coordbus/internal/domain/reservation"
	"github.com/agentcoord/coordbus/internal/repository"
	"github.com/go-chi/chi/v5"
)

// ProjectReader resolves a project by slug, for project/<slug>.
type ProjectReader interface {
	GetBySlug(ctx context.Context, slugOrKey string) (*project.Project, error)
}

// MessageReader resolves a single message by project and id, for
// message/<id>.
type MessageReader interface {
	GetMessage(ctx context.Context, projectKey string, id int64) (*messaging.Message, error)
}

// MailboxReader serves mailbox/<agent> and outbox/<agent>.
type MailboxReader interface {
	FetchInbox(ctx context.Context, projectKey, agentName string, opts messaging.InboxOptions) ([]messaging.InboxItem, error)
	ListOutbox(ctx context.Context, projectKey, agentName string, opts messaging.InboxOptions) ([]messaging.InboxItem, error)
}

// ReservationReader serves file_reservations/<slug>.
type ReservationReader interface {
	ListActiveReservations(ctx context.Context, projectSlug string) ([]reservation.FileReservation, error)
}

// Services bundles the narrow read ports the resource surface consults.
type Services struct {
	Projects     ProjectReader
	Messages     MessageReader
	Mailboxes    MailboxReader
	Reservations ReservationReader
}

// NewRouter builds the chi router serving the read-only resource surface.
// SessionMiddleware tags each request's context with its MCP session id (if
// any), matching the same header the MCP HTTP transport reads, so request
// logs can be correlated across both surfaces.
func NewRouter(svc Services) *chi.Mux {
	r := chi.NewRouter()
	r.Use(SessionMiddleware)

	r.Get("/health", handleHealth)
	r.Get("/resources/project/{slug}", handleProject(svc))
	r.Get("/resources/message/{id}", handleMessage(svc))
	r.Get("/resources/mailbox/{agent}", handleMailbox(svc))
	r.Get("/resources/outbox/{agent}", handleOutbox(svc))
	r.Get("/resources/file_reservations/{slug}", handleFileReservations(svc))

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleProject(svc Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		proj, err := svc.Projects.GetBySlug(r.Context(), slug)
		if writeIfError(w, err) {
			return
		}
		writeJSON(w, http.StatusOK, proj)
	}
}

func handleMessage(svc Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idStr := chi.URLParam(r, "id")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			http.Error(w, "invalid message id", http.StatusBadRequest)
			return
		}
		projectKey := r.URL.Query().Get("project")
		if projectKey == "" {
			http.Error(w, "project query parameter is required", http.StatusBadRequest)
			return
		}
		msg, err := svc.Messages.GetMessage(r.Context(), projectKey, id)
		if writeIfError(w, err) {
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

func handleMailbox(svc Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent := chi.URLParam(r, "agent")
		projectKey, opts, ok := parseInboxQuery(w, r)
		if !ok {
			return
		}
		items, err := svc.Mailboxes.FetchInbox(r.Context(), projectKey, agent, opts)
		if writeIfError(w, err) {
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleOutbox(svc Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent := chi.URLParam(r, "agent")
		projectKey, opts, ok := parseInboxQuery(w, r)
		if !ok {
			return
		}
		items, err := svc.Mailboxes.ListOutbox(r.Context(), projectKey, agent, opts)
		if writeIfError(w, err) {
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func parseInboxQuery(w http.ResponseWriter, r *http.Request) (projectKey string, opts messaging.InboxOptions, ok bool) {
	projectKey = r.URL.Query().Get("project")
	if projectKey == "" {
		http.Error(w, "project query parameter is required", http.StatusBadRequest)
		return "", opts, false
	}
	opts.IncludeBodies = true
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return "", opts, false
		}
		opts.Limit = limit
	}
	return projectKey, opts, true
}

func handleFileReservations(svc Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		// active_only defaults to true: this read path only has access to
		// currently-active reservations (repository.ListActive), since no
		// repository method returns released/expired rows without a
		// separate history query this surface doesn't yet need.
		activeOnly := true
		if v := r.URL.Query().Get("active_only"); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				http.Error(w, "invalid active_only", http.StatusBadRequest)
				return
			}
			activeOnly = parsed
		}
		if !activeOnly {
			http.Error(w, "active_only=false is not supported: this surface only serves currently active reservations", http.StatusBadRequest)
			return
		}
		reservations, err := svc.Reservations.ListActiveReservations(r.Context(), slug)
		if writeIfError(w, err) {
			return
		}
		writeJSON(w, http.StatusOK, reservations)
	}
}

// writeIfError maps a domain read error to an HTTP status and writes it,
// returning true if it did (so the caller can return immediately).
func writeIfError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return true
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

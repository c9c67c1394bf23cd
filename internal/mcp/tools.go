package mcp

import (
	"slices"

	"github.com/agentcoord/coordbus/internal/config"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// toolEntry pairs a tool's wire name with the cluster it belongs to for
// profile filtering, and the registration closure that binds it to a
// *Handler. The closure indirection is what mcp.AddTool's generic
// signature requires per distinct In/Out pair, so registration can't be
// a single loop over values sharing one function type.
type toolEntry struct {
	name    string
	cluster string
	reg     func(server *sdkmcp.Server, h *Handler)
}

// clusters mirror the tool groupings the catalog documents: identity,
// messaging, reservations, contacts, products, and admin.
const (
	clusterIdentity     = "identity"
	clusterMessaging    = "messaging"
	clusterReservations = "reservations"
	clusterContacts     = "contacts"
	clusterProducts     = "products"
	clusterAdmin        = "admin"
)

var toolCatalog = []toolEntry{
	{
		name: "ensure_project", cluster: clusterIdentity,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "ensure_project",
				Description: "Look up a project by key, creating it if it doesn't exist yet.",
			}, h.EnsureProject)
		},
	},
	{
		name: "list_projects", cluster: clusterIdentity,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "list_projects",
				Description: "List every known project and its agent/message counts.",
			}, h.ListProjects)
		},
	},
	{
		name: "register_agent", cluster: clusterIdentity,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "register_agent",
				Description: "Register (or refresh) an agent under a project by name.",
			}, h.RegisterAgent)
		},
	},
	{
		name: "create_agent_identity", cluster: clusterIdentity,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "create_agent_identity",
				Description: "Mint a fresh agent identity with a generated, collision-free name.",
			}, h.CreateAgentIdentity)
		},
	},
	{
		name: "whois", cluster: clusterIdentity,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "whois",
				Description: "Look up an agent's profile by project and name. Set include_recent_commits to attach the project's last few git commits.",
			}, h.Whois)
		},
	},
	{
		name: "set_contact_policy", cluster: clusterIdentity,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "set_contact_policy",
				Description: "Change an agent's cross-project contact policy (open, auto, contacts_only, or block_all).",
			}, h.SetContactPolicy)
		},
	},
	{
		name: "send_message", cluster: clusterMessaging,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "send_message",
				Description: "Send a message to one or more recipients, same-project or cross-project. Set convert_images to override the server's attachment conversion policy for this call.",
			}, h.SendMessage)
		},
	},
	{
		name: "reply_message", cluster: clusterMessaging,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "reply_message",
				Description: "Reply to an existing message, staying on its thread.",
			}, h.ReplyMessage)
		},
	},
	{
		name: "fetch_inbox", cluster: clusterMessaging,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "fetch_inbox",
				Description: "Fetch an agent's inbox, optionally filtered by time, topic, thread, or urgency. Pass product_key instead of project_key to merge the agent's inbox across every project linked to a product.",
			}, h.FetchInbox)
		},
	},
	{
		name: "list_outbox", cluster: clusterMessaging,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "list_outbox",
				Description: "List the messages an agent has sent.",
			}, h.ListOutbox)
		},
	},
	{
		name: "mark_message_read", cluster: clusterMessaging,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "mark_message_read",
				Description: "Mark a message as read for a recipient.",
			}, h.MarkMessageRead)
		},
	},
	{
		name: "acknowledge_message", cluster: clusterMessaging,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "acknowledge_message",
				Description: "Acknowledge a message that requested one, clearing any ack-escalation timer.",
			}, h.AcknowledgeMessage)
		},
	},
	{
		name: "search_messages", cluster: clusterMessaging,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "search_messages",
				Description: "Full-text search over a project's message history. Pass product_key instead of project_key to search every project linked to a product.",
			}, h.SearchMessages)
		},
	},
	{
		name: "summarize_thread", cluster: clusterMessaging,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "summarize_thread",
				Description: "Summarize a thread's participants, message count, and latest activity.",
			}, h.SummarizeThread)
		},
	},
	{
		name: "file_reservation_paths", cluster: clusterReservations,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "file_reservation_paths",
				Description: "Reserve one or more file paths/patterns for an agent, reporting any conflicting holders.",
			}, h.FileReservationPaths)
		},
	},
	{
		name: "release_file_reservations", cluster: clusterReservations,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "release_file_reservations",
				Description: "Release an agent's own active reservations on the given paths.",
			}, h.ReleaseFileReservations)
		},
	},
	{
		name: "renew_file_reservations", cluster: clusterReservations,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "renew_file_reservations",
				Description: "Extend the expiry of an agent's own active reservations.",
			}, h.RenewFileReservations)
		},
	},
	{
		name: "force_release_file_reservation", cluster: clusterReservations,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "force_release_file_reservation",
				Description: "Force-release a stale reservation whose holder has gone inactive.",
			}, h.ForceReleaseFileReservation)
		},
	},
	{
		name: "request_contact", cluster: clusterContacts,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "request_contact",
				Description: "Open a cross-project contact request between two agents.",
			}, h.RequestContact)
		},
	},
	{
		name: "respond_contact", cluster: clusterContacts,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "respond_contact",
				Description: "Accept or decline a pending contact request.",
			}, h.RespondContact)
		},
	},
	{
		name: "list_contacts", cluster: clusterContacts,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "list_contacts",
				Description: "List an agent's contact links and their status.",
			}, h.ListContacts)
		},
	},
	{
		name: "health_check", cluster: clusterAdmin,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "health_check",
				Description: "Report that the server is reachable and dispatching tools.",
			}, h.HealthCheck)
		},
	},
	{
		name: "adopt_project", cluster: clusterAdmin,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "adopt_project",
				Description: "Merge a source project's agents, messages, reservations, and archive into a target project sharing the same git repository. Dry-run by default; pass apply=true to commit the merge.",
			}, h.AdoptProject)
		},
	},
	{
		name: "ensure_product", cluster: clusterProducts,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "ensure_product",
				Description: "Look up a product grouping by key or name, creating it if it doesn't exist yet.",
			}, h.EnsureProduct)
		},
	},
	{
		name: "link_project_to_product", cluster: clusterProducts,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "link_project_to_product",
				Description: "Associate a project with a product grouping for cross-project inbox/search.",
			}, h.LinkProjectToProduct)
		},
	},
	{
		name: "product_status", cluster: clusterProducts,
		reg: func(server *sdkmcp.Server, h *Handler) {
			sdkmcp.AddTool(server, &sdkmcp.Tool{
				Name:        "product_status",
				Description: "Report a product grouping and the projects currently linked to it.",
			}, h.ProductStatus)
		},
	},
}

// coreTools is the profile an agent needs to participate: identify itself
// and exchange messages.
var coreTools = []string{
	"ensure_project", "register_agent", "whois",
	"send_message", "fetch_inbox", "list_outbox",
}

// minimalTools is the smallest usable surface: send and receive only.
var minimalTools = []string{
	"ensure_project", "register_agent", "whois",
	"send_message", "fetch_inbox",
}

// messagingTools exposes messaging plus the identity tools it depends on,
// omitting reservations and contacts.
var messagingTools = []string{
	"ensure_project", "register_agent", "create_agent_identity", "whois", "set_contact_policy",
	"send_message", "reply_message", "fetch_inbox", "list_outbox",
	"mark_message_read", "acknowledge_message", "search_messages", "summarize_thread",
	"health_check",
}

// RegisterTools registers the tools selected by cfg.Profile (full, core,
// minimal, messaging, or custom) against server, dispatching every call
// through h. Include/Exclude apply on top of whichever base profile set
// is selected; for the "custom" profile, Include alone defines the set.
func RegisterTools(server *sdkmcp.Server, h *Handler, cfg config.ToolsConfig) {
	selected := selectToolNames(cfg)
	for _, entry := range toolCatalog {
		if slices.Contains(selected, entry.name) {
			entry.reg(server, h)
		}
	}
}

func selectToolNames(cfg config.ToolsConfig) []string {
	var base []string
	switch cfg.Profile {
	case "core":
		base = coreTools
	case "minimal":
		base = minimalTools
	case "messaging":
		base = messagingTools
	case "custom":
		base = append([]string{}, cfg.Include...)
	default: // "full" and unrecognized profiles default to everything.
		for _, entry := range toolCatalog {
			base = append(base, entry.name)
		}
	}

	if cfg.Profile != "custom" {
		for _, name := range cfg.Include {
			if !slices.Contains(base, name) {
				base = append(base, name)
			}
		}
	}
	if len(cfg.Exclude) > 0 {
		filtered := base[:0:0]
		for _, name := range base {
			if !slices.Contains(cfg.Exclude, name) {
				filtered = append(filtered, name)
			}
		}
		base = filtered
	}
	return base
}

package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `coordbus is an asynchronous coordination bus for multi-agent coding workflows: agents register under a Project, then exchange Messages, hold File Reservations, and open cross-project Contacts.

Core concepts (keep this mental model small):
- Project: a namespace (usually one repo/workspace) that agents register under.
- Agent: a named participant in a project; has an attachments policy and a contact policy.
- Message: addressed to one or more agents (to/cc/bcc), carries a subject, a markdown body, and an optional thread id.
- File Reservation: a path or glob an agent holds, optionally exclusive, with a TTL.
- Contact: a request/respond handshake that must be approved before two agents in different projects can message each other (unless the recipient's policy is "open").
- Product: an optional grouping of related projects (e.g. frontend + backend repos) for cross-project status rollups.

Rules of engagement (default workflow):
1) Orient: call ensure_project, then register_agent (or create_agent_identity if you don't have a name yet).
2) Send and receive: send_message to reach another agent; fetch_inbox / list_outbox to read your mail; mark_message_read and acknowledge_message to close the loop on anything ack_required.
3) Coordinate on files: file_reservation_paths before touching shared paths; release_file_reservations when done; renew_file_reservations if you're still working past the TTL.
4) Cross-project reach: if send_message to another project returns CONTACT_REQUIRED or CONTACT_PENDING, use request_contact and wait for respond_contact before retrying.
5) Stale locks: force_release_file_reservation only succeeds once a holder has been inactive past its grace period; it isn't a way to pre-empt an active agent.

Docs (progressive disclosure):
- coordbus://docs/index (what to read when)
- coordbus://docs/concepts (glossary + invariants)
- coordbus://docs/workflows/messaging
- coordbus://docs/workflows/file-reservations
- coordbus://docs/workflows/contacts
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "coordbus://docs/index",
		Name:        "docs_index",
		Title:       "coordbus docs index",
		Description: "Entry point for agent-facing docs: what exists, what to read, and known limitations.",
		Content: `# coordbus: Agent Docs Index

This server is designed for **progressive disclosure**: keep your baseline context small and load deeper docs only when needed.

## Quick start (no deep docs)

1. ` + "`ensure_project`" + ` to get or create your project.
2. ` + "`register_agent`" + ` (or ` + "`create_agent_identity`" + ` if you need a generated name).
3. ` + "`send_message`" + ` / ` + "`fetch_inbox`" + ` for coordination.
4. ` + "`file_reservation_paths`" + ` before editing shared paths; ` + "`release_file_reservations`" + ` when done.
5. If a cross-project send returns ` + "`CONTACT_REQUIRED`" + `, use ` + "`request_contact`" + `.

## Docs (read on demand)

- ` + "`coordbus://docs/concepts`" + ` — glossary + invariants (contact gating, reservation conflicts, ack escalation).
- ` + "`coordbus://docs/workflows/messaging`" + ` — send/reply/inbox/ack loop.
- ` + "`coordbus://docs/workflows/file-reservations`" + ` — grant/release/renew/force-release.
- ` + "`coordbus://docs/workflows/contacts`" + ` — request/respond handshake.

## Capabilities & intentional limitations

- Reservation conflicts are advisory: ` + "`file_reservation_paths`" + ` always grants the reservation you asked for and reports conflicting holders alongside it, rather than refusing the call.
- ` + "`force_release_file_reservation`" + ` requires both an inactivity window and an archive grace period to elapse; it will not interrupt a holder that's still active.
- Product groupings (` + "`ensure_product`/`link_project_to_product`/`product_status`" + `) are optional; most single-repo workflows never need them.
`,
	},
	{
		URI:         "coordbus://docs/concepts",
		Name:        "docs_concepts",
		Title:       "Concepts and invariants",
		Description: "Mental model + invariant rules: contact gating, reservation conflicts, and ack escalation.",
		Content: `# Concepts and invariants

## Glossary

- **Project**: a namespace agents register under, identified by a human-chosen key.
- **Agent**: a named participant with an ` + "`attachments_policy`" + ` and a ` + "`contact_policy`" + ` (open, auto, contacts_only, or block_all).
- **Message**: has ` + "`to`/`cc`/`bcc`" + ` recipients, a subject, a markdown body, an optional ` + "`thread_id`" + `, and an ` + "`ack_required`" + ` flag.
- **Delivery**: one recipient's copy of a sent message; read/ack state is tracked per delivery, not per message.
- **File Reservation**: a path or glob pattern an agent holds, with an expiry and an ` + "`exclusive`" + ` flag.
- **Contact link**: a directional approval between two agents in different projects.

## Contact gating

A same-project send never requires contact. A cross-project send to an agent whose policy is:
- **open**: delivers immediately.
- **anything else** (auto, contacts_only, block_all, all treated alike): requires an approved ` + "`AgentLink`" + ` in the sender's direction. A blocked link fails with ` + "`CONTACT_REQUIRED`" + `; with no approved link the send opens a contact request (` + "`CONTACT_PENDING`" + `) when auto-handshake is enabled, or fails with ` + "`CONTACT_REQUIRED`" + ` otherwise.

## Reservation conflicts

` + "`file_reservation_paths`" + ` grants what you asked for unconditionally; conflicts against other agents' active exclusive reservations on overlapping paths are reported back as advisory data, not as a rejection. Callers are expected to check the conflict list and coordinate out of band.

## Ack escalation

A message sent with ` + "`ack_required`" + ` starts a TTL once delivered. If it isn't acknowledged before the TTL elapses, the background scheduler logs a warning and, when escalation is enabled, opens a system-held reservation over the recipient's inbox path (` + "`agents/<name>/inbox/**`" + `).
`,
	},
	{
		URI:         "coordbus://docs/workflows/messaging",
		Name:        "docs_workflow_messaging",
		Title:       "Workflow: messaging",
		Description: "Playbook for the send / reply / inbox / ack loop.",
		Content: `# Workflow: messaging

## Sending

` + "`send_message(project_key, sender_name, to, subject, body_md, ...)`" + ` — recipients are ` + "`name`" + `, or ` + "`name@<project>`" + ` / ` + "`project:<slug>#name`" + ` for cross-project addressing.

## Reading

- ` + "`fetch_inbox`" + ` — supports ` + "`since_ts`" + ` (RFC3339), ` + "`topic`" + `, ` + "`thread_id`" + `, and ` + "`urgent_only`" + ` filters.
- ` + "`list_outbox`" + ` — what you've sent.
- ` + "`search_messages`" + ` — full-text search across a project's history.
- ` + "`summarize_thread`" + ` — participants, message count, latest activity for a ` + "`thread_id`" + `.

## Closing the loop

- ` + "`mark_message_read`" + ` once you've seen a message.
- ` + "`acknowledge_message`" + ` for anything sent with ` + "`ack_required`" + `, before its TTL escalates.
- ` + "`reply_message`" + ` stays on the original message's thread automatically.
`,
	},
	{
		URI:         "coordbus://docs/workflows/file-reservations",
		Name:        "docs_workflow_file_reservations",
		Title:       "Workflow: file reservations",
		Description: "Playbook for grant / release / renew / force-release.",
		Content: `# Workflow: file reservations

## Before editing shared paths

Call ` + "`file_reservation_paths(project_key, agent_name, paths, ttl_seconds, exclusive)`" + `. Check the returned ` + "`conflicts`" + ` list — it names other active exclusive holders on overlapping paths, even though your reservation was still granted.

## While working

` + "`renew_file_reservations`" + ` extends expiry to ` + "`max(current_expiry, now + extend_seconds)`" + ` if you're going to run past the original TTL.

## When done

` + "`release_file_reservations`" + ` on the exact paths you reserved.

## Stale reservations

` + "`force_release_file_reservation`" + ` only succeeds once the holder has been inactive past the configured inactivity window AND its archive sidecar hasn't been touched within the activity grace period. It is for cleaning up abandoned locks, not for pre-empting an active agent.
`,
	},
	{
		URI:         "coordbus://docs/workflows/contacts",
		Name:        "docs_workflow_contacts",
		Title:       "Workflow: contacts",
		Description: "How the cross-project request/respond handshake works.",
		Content: `# Workflow: contacts

## When you need one

A cross-project ` + "`send_message`" + ` to an agent whose ` + "`contact_policy`" + ` is anything other than ` + "`open`" + ` needs an approved link first.

## Requesting

` + "`request_contact(from_project_key, from_agent_name, to_project_key, to_agent_name, reason)`" + ` opens a pending link.

## Responding

The recipient calls ` + "`respond_contact(..., accept=true, ttl_seconds)`" + ` to approve (optionally time-boxed) or ` + "`accept=false`" + ` to decline.

## Checking status

` + "`list_contacts`" + ` shows the links an agent has opened (outbound direction only), with their current status.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}

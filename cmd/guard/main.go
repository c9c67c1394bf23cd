// Command guard checks candidate paths against another agent's active
// exclusive file_reservations before a commit or edit proceeds. It shares
// the archive and matching packages with the server but never imports the
// MCP transport: it is meant to run as a pre-commit hook or a standalone
// pre-flight check, not as a long-lived process.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agentcoord/coordbus/internal/archive"
	"github.com/agentcoord/coordbus/internal/config"
	"github.com/agentcoord/coordbus/internal/domain/project"
	"github.com/agentcoord/coordbus/internal/matching"
	"github.com/agentcoord/coordbus/internal/sqlite"
)

func main() {
	stdinNUL := flag.Bool("stdin-nul", false, "read NUL-delimited candidate paths from stdin")
	advisory := flag.Bool("advisory", false, "print conflicts but always exit 0")
	repoFlag := flag.String("repo", "", "path to the git repository (defaults to the detected toplevel, then cwd)")
	flag.Parse()

	if err := run(*stdinNUL, *advisory, *repoFlag); err != nil {
		fmt.Fprintf(os.Stderr, "guard: %v\n", err)
		os.Exit(1)
	}
}

func run(stdinNUL, advisory bool, repoFlag string) error {
	agentName := os.Getenv("AGENT_NAME")
	if agentName == "" {
		return fmt.Errorf("AGENT_NAME environment variable is required")
	}

	repoRoot, err := resolveRepoRoot(repoFlag)
	if err != nil {
		return err
	}

	paths, err := readCandidatePaths(stdinNUL)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	_, slug := project.CanonicalizeKey(repoRoot)

	db, err := sqlite.New(cfg.DB.Path, sqlite.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	agentID, err := resolveAgentID(ctx, db, slug, agentName)
	if err != nil {
		return err
	}

	ar := archive.New(cfg.Storage.Root, slog.New(slog.NewTextHandler(io.Discard, nil)))
	reservations, err := ar.ListReservationSidecars(slug)
	if err != nil {
		return fmt.Errorf("reading file_reservations: %w", err)
	}

	ignorecase := gitConfigBool(repoRoot, "core.ignorecase")
	matcher := matching.NewMatcher(ignorecase)

	type conflict struct {
		path    string
		agent   string
		pattern string
	}
	var conflicts []conflict
	now := time.Now().UTC()

	for _, res := range reservations {
		if agentID != "" && res.AgentID == agentID {
			continue
		}
		if !res.Exclusive {
			continue
		}
		if res.ReleasedTS != nil {
			continue
		}
		if !res.ExpiresTS.IsZero() && res.ExpiresTS.Before(now) {
			continue
		}
		pattern := strings.TrimSpace(res.PathPattern)
		if pattern == "" {
			continue
		}
		for _, p := range paths {
			if matcher.MatchPath(pattern, p, false) {
				conflicts = append(conflicts, conflict{path: p, agent: res.AgentID, pattern: pattern})
			}
		}
	}

	if len(conflicts) == 0 {
		return nil
	}

	fmt.Fprintln(os.Stderr, "Exclusive file_reservation conflicts detected:")
	for _, c := range conflicts {
		fmt.Fprintf(os.Stderr, "  - %s matches file_reservation %q held by %s\n", c.path, c.pattern, c.agent)
	}
	if advisory {
		fmt.Fprintln(os.Stderr, "Advisory mode: not blocking.")
		return nil
	}
	fmt.Fprintln(os.Stderr, "Resolve conflicts or release file_reservations before proceeding.")
	return fmt.Errorf("%d path(s) conflict with active file_reservations", len(conflicts))
}

// resolveAgentID looks up the calling agent's id so its own reservations
// can be skipped. A project or agent that doesn't exist yet in the catalog
// just means every reservation is treated as someone else's.
func resolveAgentID(ctx context.Context, db *sqlite.DB, slug, agentName string) (string, error) {
	projects := sqlite.NewProjectRepository(db)
	proj, err := projects.GetBySlug(ctx, slug)
	if err != nil {
		return "", nil
	}
	agents := sqlite.NewAgentRepository(db)
	agent, err := agents.GetByName(ctx, proj.ID, agentName)
	if err != nil {
		return "", nil
	}
	return agent.ID, nil
}

func resolveRepoRoot(repoFlag string) (string, error) {
	if repoFlag != "" {
		abs, err := filepath.Abs(repoFlag)
		if err != nil {
			return "", fmt.Errorf("resolving --repo: %w", err)
		}
		return abs, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	out, err := exec.Command("git", "-C", cwd, "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return cwd, nil
	}
	toplevel := strings.TrimSpace(string(out))
	if toplevel == "" {
		return cwd, nil
	}
	return toplevel, nil
}

// readCandidatePaths reads NUL-delimited paths from stdin when --stdin-nul
// is set. Without the flag, guard checks nothing and exits clean: it never
// blocks on a hook invoked without a path list.
func readCandidatePaths(stdinNUL bool) ([]string, error) {
	if !stdinNUL {
		return nil, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool)
	var paths []string
	for _, raw := range strings.Split(string(data), "\x00") {
		if raw == "" || seen[raw] {
			continue
		}
		seen[raw] = true
		paths = append(paths, raw)
	}
	sort.Strings(paths)
	return paths, nil
}

func gitConfigBool(repoRoot, key string) bool {
	out, err := exec.Command("git", "-C", repoRoot, "config", "--get", key).Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(strings.ToLower(string(out))) == "true"
}

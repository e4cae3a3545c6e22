package skill

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// maxFetchBytes caps http_fetch responses so a single capability call
// cannot blow out a task transcript.
const maxFetchBytes = 256 * 1024

// maxReadBytes caps read_file output for the same reason.
const maxReadBytes = 128 * 1024

// ClockSkill reports the current time. Mostly useful for giving
// workers a stable notion of "now" in their transcripts.
type ClockSkill struct{}

// Name implements Capability.
func (s *ClockSkill) Name() string { return "clock" }

// Description implements Capability.
func (s *ClockSkill) Description() string {
	return "Current UTC time in RFC 3339 format. Takes no arguments."
}

// Execute implements Capability.
func (s *ClockSkill) Execute(ctx context.Context, args string) (string, error) {
	return time.Now().UTC().Format(time.RFC3339), nil
}

// ReadFileSkill reads a file confined to its root directory.
type ReadFileSkill struct {
	// Root is the directory reads are confined to.
	Root string
}

// Name implements Capability.
func (s *ReadFileSkill) Name() string { return "read_file" }

// Description implements Capability.
func (s *ReadFileSkill) Description() string {
	return "Read a file. Argument: path relative to the workspace root."
}

// Execute implements Capability.
func (s *ReadFileSkill) Execute(ctx context.Context, args string) (string, error) {
	path, err := s.confine(args)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args, err)
	}
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
	}
	return string(data), nil
}

func (s *ReadFileSkill) confine(arg string) (string, error) {
	return confinePath(s.Root, arg)
}

// ListDirSkill lists a directory confined to its root.
type ListDirSkill struct {
	// Root is the directory listings are confined to.
	Root string
}

// Name implements Capability.
func (s *ListDirSkill) Name() string { return "list_dir" }

// Description implements Capability.
func (s *ListDirSkill) Description() string {
	return "List a directory. Argument: path relative to the workspace root, empty for the root itself."
}

// Execute implements Capability.
func (s *ListDirSkill) Execute(ctx context.Context, args string) (string, error) {
	path, err := confinePath(s.Root, args)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", args, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

// confinePath resolves arg against root and rejects escapes.
func confinePath(root, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	clean := filepath.Join(root, filepath.Clean("/"+arg))
	rel, err := filepath.Rel(root, clean)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q escapes workspace root", arg)
	}
	return clean, nil
}

// HTTPFetchSkill fetches a URL over HTTP(S) with a bounded body size.
type HTTPFetchSkill struct {
	// Client is the HTTP client to use. A default with a 30s timeout
	// is used when nil.
	Client *http.Client
}

// Name implements Capability.
func (s *HTTPFetchSkill) Name() string { return "http_fetch" }

// Description implements Capability.
func (s *HTTPFetchSkill) Description() string {
	return "Fetch a URL with GET. Argument: the URL. Response body is truncated to 256 KiB."
}

// Execute implements Capability.
func (s *HTTPFetchSkill) Execute(ctx context.Context, args string) (string, error) {
	url := strings.TrimSpace(args)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("unsupported URL %q", url)
	}

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

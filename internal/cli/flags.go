package cli

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/mdo/internal/runapi"
)

// fieldAssignment is one --map flag: file:field=column.
type fieldAssignment struct {
	File   string
	Field  string
	Column string
}

// parseTemplateFlags parses repeated file=template-id flags.
func parseTemplateFlags(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		file, id, ok := strings.Cut(v, "=")
		file, id = strings.TrimSpace(file), strings.TrimSpace(id)
		if !ok || file == "" || id == "" {
			return nil, fmt.Errorf("invalid --template %q: want file=template-id", v)
		}
		out[file] = id
	}
	return out, nil
}

// parseMapFlags parses repeated file:field=column flags. The file name is
// everything before the last colon so names containing colons still work.
func parseMapFlags(values []string) ([]fieldAssignment, error) {
	out := make([]fieldAssignment, 0, len(values))
	for _, v := range values {
		left, column, ok := strings.Cut(v, "=")
		i := strings.LastIndex(left, ":")
		if !ok || i <= 0 || i == len(left)-1 || strings.TrimSpace(column) == "" {
			return nil, fmt.Errorf("invalid --map %q: want file:field=column", v)
		}
		out = append(out, fieldAssignment{
			File:   strings.TrimSpace(left[:i]),
			Field:  strings.TrimSpace(left[i+1:]),
			Column: strings.TrimSpace(column),
		})
	}
	return out, nil
}

// remoteClient returns a backend client, or nil when url is empty.
func remoteClient(url, apiKey string) (*runapi.Client, error) {
	if url == "" {
		return nil, nil
	}
	var opts []runapi.Option
	if apiKey != "" {
		opts = append(opts, runapi.WithAPIKey(apiKey))
	}
	c, err := runapi.NewClient(url, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid backend url", err)
	}
	return c, nil
}

// requireRemote is remoteClient for commands that only work against a backend.
func requireRemote(url, apiKey string) (*runapi.Client, error) {
	if url == "" {
		return nil, NewExitError(ExitCommandError, "a run backend is required: pass --remote or set MDO_REMOTE_URL")
	}
	return remoteClient(url, apiKey)
}

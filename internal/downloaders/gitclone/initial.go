package gitclone

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/telsin/riptide/internal/output"
	"github.com/telsin/riptide/internal/utils"
)

// GitTransfer clones a repository from one of the known providers, over
// https or ssh.
type GitTransfer struct{}

func (d *GitTransfer) Validate(spec *utils.TransferSpec) error {
	provider, owner, repo, err := parseGitURL(spec.URL)
	if err != nil {
		return err
	}
	if spec.Metadata == nil {
		spec.Metadata = make(map[string]any)
	}
	spec.Metadata["provider"] = provider
	spec.Metadata["owner"] = owner
	spec.Metadata["repo"] = repo
	return nil
}

func (d *GitTransfer) Prepare(ctx context.Context, spec *utils.TransferSpec) error {
	log := output.GetLogger("gitclone")
	provider := spec.Metadata["provider"].(string)
	owner := spec.Metadata["owner"].(string)
	repo := spec.Metadata["repo"].(string)

	cloneURL := spec.URL
	if !strings.HasPrefix(spec.URL, "git@") {
		cloneURL = fmt.Sprintf("https://%s/%s/%s", provider, owner, repo)
	}
	spec.Metadata["cloneURL"] = cloneURL

	if spec.OutputPath == "" {
		spec.OutputPath = repo
	}
	if info, err := os.Stat(spec.OutputPath); err == nil && info.IsDir() {
		spec.OutputPath = utils.RenewOutputPath(spec.OutputPath)
		log.Debug().Str("output", spec.OutputPath).Msg("Output directory exists, using renewed path")
	}
	if err := os.MkdirAll(filepath.Dir(spec.OutputPath), 0755); err != nil {
		return fmt.Errorf("error creating output directory: %v", err)
	}
	return nil
}

// parseGitURL accepts both https and scp-like ssh forms and returns the
// provider host, owner and repository name.
func parseGitURL(rawURL string) (string, string, string, error) {
	url := strings.TrimSpace(rawURL)
	url = strings.TrimSuffix(url, ".git")
	url = strings.TrimSuffix(url, "/")

	var provider, owner, repo string
	if after, ok := strings.CutPrefix(url, "git@"); ok {
		host, path, found := strings.Cut(after, ":")
		if !found {
			return "", "", "", fmt.Errorf("invalid git ssh URL, expected git@host:owner/repo")
		}
		parts := strings.Split(path, "/")
		if len(parts) < 2 {
			return "", "", "", fmt.Errorf("invalid git ssh URL, expected git@host:owner/repo")
		}
		provider, owner, repo = host, parts[0], parts[1]
	} else {
		url = strings.TrimPrefix(url, "https://")
		url = strings.TrimPrefix(url, "http://")
		parts := strings.Split(url, "/")
		if len(parts) < 3 {
			return "", "", "", fmt.Errorf("invalid git URL format, expected provider/owner/repo")
		}
		provider, owner, repo = parts[0], parts[1], parts[2]
	}

	switch provider {
	case "github.com", "gitlab.com", "bitbucket.org":
	default:
		return "", "", "", fmt.Errorf("unsupported git provider: %s", provider)
	}
	return provider, owner, repo, nil
}

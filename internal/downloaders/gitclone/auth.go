package gitclone

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// getAuthMethod builds credentials from the environment. A provider token
// wins over an SSH key; with neither the clone proceeds anonymously.
func getAuthMethod(repoURL string) (transport.AuthMethod, error) {
	username := "oauth2"
	var token string
	switch {
	case strings.Contains(repoURL, "github.com"):
		token = firstEnv("GITHUB_TOKEN", "GIT_TOKEN")
	case strings.Contains(repoURL, "gitlab.com"):
		token = firstEnv("GITLAB_TOKEN", "GIT_TOKEN")
	case strings.Contains(repoURL, "bitbucket.org"):
		token = firstEnv("BITBUCKET_TOKEN", "GIT_TOKEN")
		username = "x-token-auth"
	}
	if token != "" {
		return &http.BasicAuth{
			Username: username,
			Password: token,
		}, nil
	}

	if keyPath := os.Getenv("GIT_SSH_KEY"); keyPath != "" {
		publicKeys, err := ssh.NewPublicKeysFromFile("git", keyPath, os.Getenv("GIT_SSH_KEY_PASSPHRASE"))
		if err != nil {
			return nil, fmt.Errorf("couldn't load SSH key: %v", err)
		}
		return publicKeys, nil
	}
	return nil, nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if value := os.Getenv(name); value != "" {
			return value
		}
	}
	return ""
}

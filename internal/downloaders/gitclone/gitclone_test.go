package gitclone

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telsin/riptide/internal/output"
	"github.com/telsin/riptide/internal/progress"
	"github.com/telsin/riptide/internal/utils"
)

func TestParseGitURL(t *testing.T) {
	tests := []struct {
		url      string
		provider string
		owner    string
		repo     string
		wantErr  bool
	}{
		{url: "https://github.com/owner/repo", provider: "github.com", owner: "owner", repo: "repo"},
		{url: "https://github.com/owner/repo.git", provider: "github.com", owner: "owner", repo: "repo"},
		{url: "https://gitlab.com/owner/repo/", provider: "gitlab.com", owner: "owner", repo: "repo"},
		{url: "bitbucket.org/owner/repo", provider: "bitbucket.org", owner: "owner", repo: "repo"},
		{url: "git@github.com:owner/repo.git", provider: "github.com", owner: "owner", repo: "repo"},
		{url: "git@gitlab.com:owner/repo", provider: "gitlab.com", owner: "owner", repo: "repo"},
		{url: "https://example.com/owner/repo", wantErr: true},
		{url: "git@github.com/owner-no-colon", wantErr: true},
		{url: "https://github.com/justowner", wantErr: true},
	}
	for _, tt := range tests {
		provider, owner, repo, err := parseGitURL(tt.url)
		if tt.wantErr {
			assert.Error(t, err, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.provider, provider, tt.url)
		assert.Equal(t, tt.owner, owner, tt.url)
		assert.Equal(t, tt.repo, repo, tt.url)
	}
}

func TestValidateAndPrepare(t *testing.T) {
	d := &GitTransfer{}
	out := filepath.Join(t.TempDir(), "repo")
	spec := &utils.TransferSpec{
		Type:       utils.TransferGitClone,
		URL:        "https://github.com/owner/repo.git",
		OutputPath: out,
		Metadata:   make(map[string]any),
	}
	require.NoError(t, d.Validate(spec))
	assert.Equal(t, "github.com", spec.Metadata["provider"])
	assert.Equal(t, "owner", spec.Metadata["owner"])
	assert.Equal(t, "repo", spec.Metadata["repo"])

	require.NoError(t, d.Prepare(context.Background(), spec))
	assert.Equal(t, "https://github.com/owner/repo", spec.Metadata["cloneURL"])
	assert.Equal(t, out, spec.OutputPath)

	// An existing directory at the output path gets a renewed name.
	require.NoError(t, os.MkdirAll(out, 0755))
	spec.OutputPath = out
	require.NoError(t, d.Prepare(context.Background(), spec))
	assert.Equal(t, out+"-(1)", spec.OutputPath)
}

func TestGetAuthMethod(t *testing.T) {
	for _, name := range []string{"GITHUB_TOKEN", "GITLAB_TOKEN", "BITBUCKET_TOKEN", "GIT_TOKEN", "GIT_SSH_KEY"} {
		t.Setenv(name, "")
	}

	auth, err := getAuthMethod("https://github.com/owner/repo")
	require.NoError(t, err)
	assert.Nil(t, auth, "no credentials means anonymous clone")

	t.Setenv("GITHUB_TOKEN", "gh-token")
	auth, err = getAuthMethod("https://github.com/owner/repo")
	require.NoError(t, err)
	basic, ok := auth.(*githttp.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "oauth2", basic.Username)
	assert.Equal(t, "gh-token", basic.Password)

	t.Setenv("BITBUCKET_TOKEN", "bb-token")
	auth, err = getAuthMethod("https://bitbucket.org/owner/repo")
	require.NoError(t, err)
	basic, ok = auth.(*githttp.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "x-token-auth", basic.Username)
}

func TestCloneProgressWriter(t *testing.T) {
	writer := &cloneProgress{log: output.GetLogger("gitclone")}
	payload := []byte("Counting objects: 10\rCounting objects: 20\nDone.\n")
	n, err := writer.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
}

func initFixtureRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# fixture\n"), 0644))
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	_, err = wt.Commit("initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "Tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

func TestRunClonesLocalRepo(t *testing.T) {
	t.Setenv("GIT_SSH_KEY", "")
	src := initFixtureRepo(t)
	dest := filepath.Join(t.TempDir(), "clone")

	spec := &utils.TransferSpec{
		ID:         "git-test",
		Type:       utils.TransferGitClone,
		OutputPath: dest,
		Metadata:   map[string]any{"cloneURL": src},
	}
	tracker := progress.NewTracker(spec.ID)
	d := &GitTransfer{}
	require.NoError(t, d.Run(context.Background(), spec, tracker))

	content, err := os.ReadFile(filepath.Join(dest, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# fixture\n", string(content))
	assert.Positive(t, tracker.Downloaded(), "clone size feeds the progress counter")
}

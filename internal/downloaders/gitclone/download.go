package gitclone

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/rs/zerolog"

	"github.com/telsin/riptide/internal/output"
	"github.com/telsin/riptide/internal/progress"
	"github.com/telsin/riptide/internal/utils"
)

// cloneProgress forwards go-git's side-band progress lines to the debug log.
type cloneProgress struct {
	log zerolog.Logger
}

func (p *cloneProgress) Write(data []byte) (int, error) {
	lines := strings.Split(strings.ReplaceAll(string(data), "\r", "\n"), "\n")
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			p.log.Debug().Msg(line)
		}
	}
	return len(data), nil
}

func (d *GitTransfer) Run(ctx context.Context, spec *utils.TransferSpec, tracker *progress.Tracker) error {
	log := output.GetLogger("gitclone")
	cloneURL := spec.Metadata["cloneURL"].(string)

	auth, err := getAuthMethod(cloneURL)
	if err != nil {
		return err
	}
	if auth == nil {
		log.Debug().Msg("No credentials in environment, cloning anonymously")
	}

	cloneOptions := &git.CloneOptions{
		URL:      cloneURL,
		Progress: &cloneProgress{log: log},
		Auth:     auth,
	}
	if spec.GitDepth > 0 {
		cloneOptions.Depth = spec.GitDepth
	}

	log.Debug().Str("url", cloneURL).Str("output", spec.OutputPath).Msg("Cloning repository")
	if _, err := git.PlainCloneContext(ctx, spec.OutputPath, false, cloneOptions); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("git clone failed: %v", err)
	}

	if size, err := getDirSize(spec.OutputPath); err == nil {
		tracker.SetTotal(size)
		tracker.Add(size)
		log.Debug().Str("size", utils.FormatBytes(uint64(size))).Msg("Clone complete")
	}
	return nil
}

func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		size += info.Size()
		return nil
	})
	return size, err
}

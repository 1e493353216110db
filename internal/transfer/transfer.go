package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/telsin/riptide/internal/downloaders/gitclone"
	riptidehttp "github.com/telsin/riptide/internal/downloaders/http"
	"github.com/telsin/riptide/internal/downloaders/s3"
	"github.com/telsin/riptide/internal/output"
	"github.com/telsin/riptide/internal/progress"
	"github.com/telsin/riptide/internal/utils"
)

// ErrUnsupportedSource is returned when no implementation is registered for a
// transfer type.
var ErrUnsupportedSource = errors.New("unsupported source type")

// Transfer is one transfer capability. Validate checks the spec without
// touching the network, Prepare probes the remote and settles the output
// path, Run moves the bytes.
type Transfer interface {
	Validate(spec *utils.TransferSpec) error
	Prepare(ctx context.Context, spec *utils.TransferSpec) error
	Run(ctx context.Context, spec *utils.TransferSpec, tracker *progress.Tracker) error
}

// registry maps transfer types to their implementations.
var registry = map[utils.TransferType]Transfer{
	utils.TransferHTTP:     &riptidehttp.HTTPTransfer{},
	utils.TransferS3:       &s3.S3Transfer{},
	utils.TransferGitClone: &gitclone.GitTransfer{},
}

// For returns the implementation for a transfer type. Torrent sources are
// detected so they can be named in the error, but no engine ships in this
// build.
func For(kind utils.TransferType) (Transfer, error) {
	if kind == utils.TransferTorrent {
		return nil, fmt.Errorf("%w: torrent sources are recognized but no torrent engine is linked", ErrUnsupportedSource)
	}
	impl, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, kind)
	}
	return impl, nil
}

// Run drives one transfer through validate, prepare and execute. Errors from
// the execute stage are returned unwrapped so callers can classify
// cancellation and checksum failures.
func Run(ctx context.Context, spec *utils.TransferSpec, tracker *progress.Tracker) error {
	log := output.GetLogger("transfer")

	impl, err := For(spec.Type)
	if err != nil {
		return err
	}
	if err := impl.Validate(spec); err != nil {
		return fmt.Errorf("validation failed: %v", err)
	}
	log.Debug().Str("type", string(spec.Type)).Str("url", spec.URL).Msg("Preparing transfer")
	if err := impl.Prepare(ctx, spec); err != nil {
		return fmt.Errorf("preparation failed: %w", err)
	}
	log.Debug().Str("output", spec.OutputPath).Msg("Starting transfer")
	return impl.Run(ctx, spec, tracker)
}

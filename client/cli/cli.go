// Package cli implements the mediaclient command line.
package cli

import (
	"context"

	"github.com/juju/errors"
	"github.com/peer-calls/mediaclient/client/logger"
)

// EnvPrefix is the prefix of environment variables overriding the
// configuration.
const EnvPrefix = "MEDIACLIENT_"

type Props struct {
	Log     logger.Logger
	Version string
	Args    []string
}

func Exec(ctx context.Context, props Props) error {
	cmd := NewRootCommand(props)
	err := cmd.Exec(ctx, props.Args)

	return errors.Trace(err)
}

package cli

import (
	"github.com/peer-calls/mediaclient/client/command"
)

func NewRootCommand(props Props) *command.Command {
	return command.New(command.Params{
		Name: "mediaclient",
		Desc: "mediaclient receives cameras from a media server.",
		SubCommands: []*command.Command{
			newViewCmd(props),
			newVersionCmd(props),
		},
	})
}

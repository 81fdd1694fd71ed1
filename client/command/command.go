package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/juju/errors"
	"github.com/spf13/pflag"
)

// ErrCommandNotFound is returned when the first positional argument names no
// subcommand.
var ErrCommandNotFound = errors.New("command not found")

// Handler is a command line handler.
type Handler interface {
	// Handle receives the context and the arguments left over after flag
	// parsing. The subcommand, if any, is run after Handle returns nil.
	Handle(ctx context.Context, args []string) error
}

// HandlerFunc defines a functional implementation of Handler.
type HandlerFunc func(ctx context.Context, args []string) error

// Handle implements Handler.
func (h HandlerFunc) Handle(ctx context.Context, args []string) error {
	return h(ctx, args)
}

// FlagRegistry registers the flags of a command before parsing.
type FlagRegistry interface {
	// RegisterFlags adds the flags of cmd to flags.
	RegisterFlags(cmd *Command, flags *pflag.FlagSet)
}

// FlagRegistryFunc defines a functional implementation of FlagRegistry.
type FlagRegistryFunc func(cmd *Command, flags *pflag.FlagSet)

// RegisterFlags implements FlagRegistry.
func (f FlagRegistryFunc) RegisterFlags(cmd *Command, flags *pflag.FlagSet) {
	f(cmd, flags)
}

// ArgsProcessor rewrites arguments, for example to insert a default
// subcommand.
type ArgsProcessor interface {
	// ProcessArgs returns the arguments to parse instead of args.
	ProcessArgs(c *Command, args []string) []string
}

// ArgsProcessorFunc defines a functional implementation of ArgsProcessor.
type ArgsProcessorFunc func(cmd *Command, args []string) []string

// ProcessArgs implements ArgsProcessor.
func (f ArgsProcessorFunc) ProcessArgs(cmd *Command, args []string) []string {
	return f(cmd, args)
}

// Params are the parameters of a Command.
type Params struct {
	Name             string
	Desc             string
	ArgsPreProcessor ArgsProcessor
	FlagRegistry     FlagRegistry
	Handler          Handler
	SubCommands      []*Command
}

// Command is a node in a tree of commands. Flags of each node are parsed
// until the first positional argument, which selects the subcommand.
type Command struct {
	params      Params
	subCommands map[string]*Command
	writer      io.Writer
}

// New creates a command writing its usage to stderr.
func New(params Params) *Command {
	c := &Command{
		params:      params,
		subCommands: make(map[string]*Command, len(params.SubCommands)),
	}

	for _, sub := range params.SubCommands {
		c.subCommands[sub.Name()] = sub
	}

	c.SetWriter(os.Stderr)

	return c
}

// SetWriter sets the usage output of c and all of its subcommands.
func (c *Command) SetWriter(w io.Writer) {
	c.writer = w

	for _, sub := range c.params.SubCommands {
		sub.SetWriter(w)
	}
}

// Name returns the name used to select the command.
func (c *Command) Name() string {
	return c.params.Name
}

// Desc returns the one line description of the command.
func (c *Command) Desc() string {
	return c.params.Desc
}

// Usage writes the usage of the command with its flags and subcommands.
func (c *Command) Usage(flags *pflag.FlagSet) {
	var b strings.Builder

	flagUsages := flags.FlagUsages()

	b.WriteString("Usage: ")
	b.WriteString(c.params.Name)

	if flagUsages != "" {
		b.WriteString(" [OPTIONS]")
	}

	if len(c.params.SubCommands) > 0 {
		b.WriteString(" [COMMAND] [ARG...]")
	}

	fmt.Fprintf(&b, "\n%s\n", c.params.Desc)

	if flagUsages != "" {
		fmt.Fprintf(&b, "\nOptions:\n%s\n", flagUsages)
	}

	if len(c.params.SubCommands) > 0 {
		width := 12

		for _, sub := range c.params.SubCommands {
			if l := len(sub.Name()); l > width {
				width = l
			}
		}

		b.WriteString("\nCommands:\n")

		for _, sub := range c.params.SubCommands {
			fmt.Fprintf(&b, "  %-*s %s\n", width, sub.Name(), sub.Desc())
		}

		b.WriteString("\n")
	}

	_, _ = io.WriteString(c.writer, b.String())
}

// Exec parses args and runs the handler followed by the selected
// subcommand. ctx is cancelled on SIGINT and SIGTERM.
func (c *Command) Exec(ctx context.Context, args []string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if c.params.ArgsPreProcessor != nil {
		args = c.params.ArgsPreProcessor.ProcessArgs(c, args)
	}

	flags := pflag.NewFlagSet(c.Name(), pflag.ContinueOnError)
	flags.SetOutput(c.writer)
	// Flags after the first positional argument belong to the subcommand.
	flags.SetInterspersed(false)
	flags.Usage = func() {
		c.Usage(flags)
	}

	if c.params.FlagRegistry != nil {
		c.params.FlagRegistry.RegisterFlags(c, flags)
	}

	if err := flags.Parse(args); err != nil {
		return errors.Annotatef(err, "parse args for command: %s", c.params.Name)
	}

	args = flags.Args()

	if c.params.Handler != nil {
		if err := c.params.Handler.Handle(ctx, args); err != nil {
			return errors.Trace(err)
		}
	}

	if len(args) > 0 && args[0] == "--" {
		args = args[1:]
	}

	if len(args) == 0 || len(c.subCommands) == 0 {
		return nil
	}

	sub, ok := c.subCommands[args[0]]
	if !ok {
		return errors.Annotatef(ErrCommandNotFound, "command: %s", args[0])
	}

	return errors.Trace(sub.Exec(ctx, args[1:]))
}

package command_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/peer-calls/mediaclient/client/command"
	"github.com/peer-calls/mediaclient/client/multierr"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
)

func TestCommand_Args(t *testing.T) {
	var (
		got    []string
		config string
	)

	cmd := command.New(command.Params{
		Name: "root",
		FlagRegistry: command.FlagRegistryFunc(func(_ *command.Command, flags *pflag.FlagSet) {
			flags.StringVarP(&config, "config", "c", "", "config to use")
		}),
		Handler: command.HandlerFunc(func(ctx context.Context, args []string) error {
			got = args

			return nil
		}),
	})

	err := cmd.Exec(context.Background(), []string{"-c", "client.yml", "a", "-b"})
	assert.NoError(t, err)
	assert.Equal(t, "client.yml", config)
	assert.Equal(t, []string{"a", "-b"}, got)
}

func TestCommand_SubCommand(t *testing.T) {
	var (
		config string
		camera string
		got    []string
	)

	newRoot := func() *command.Command {
		return command.New(command.Params{
			Name: "root",
			Desc: "root command",
			FlagRegistry: command.FlagRegistryFunc(func(_ *command.Command, flags *pflag.FlagSet) {
				flags.StringVarP(&config, "config", "c", "", "config to use")
			}),
			SubCommands: []*command.Command{
				command.New(command.Params{
					Name: "view",
					Desc: "view a camera",
					FlagRegistry: command.FlagRegistryFunc(func(_ *command.Command, flags *pflag.FlagSet) {
						flags.StringVar(&camera, "camera", "", "camera id")
					}),
					Handler: command.HandlerFunc(func(ctx context.Context, args []string) error {
						got = args

						return nil
					}),
				}),
			},
		})
	}

	type testCase struct {
		name       string
		exec       []string
		wantConfig string
		wantCamera string
		wantArgs   []string
		wantErr    error
	}

	testCases := []testCase{
		{"sub", []string{"-c", "a.yml", "view", "--camera", "cam1", "x"}, "a.yml", "cam1", []string{"x"}, nil},
		{"sub after --", []string{"-c", "b.yml", "--", "view", "--camera", "cam2"}, "b.yml", "cam2", []string{}, nil},
		{"unknown", []string{"play"}, "", "", nil, command.ErrCommandNotFound},
		{"help", []string{"--help"}, "", "", nil, pflag.ErrHelp},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config, camera, got = "", "", nil

			var out bytes.Buffer

			root := newRoot()
			root.SetWriter(&out)

			err := root.Exec(context.Background(), tc.exec)

			if tc.wantErr != nil {
				assert.True(t, multierr.Is(err, tc.wantErr), "unexpected error: %v", err)

				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.wantConfig, config)
			assert.Equal(t, tc.wantCamera, camera)
			assert.Equal(t, tc.wantArgs, got)
		})
	}
}

func TestCommand_Usage(t *testing.T) {
	var out bytes.Buffer

	root := command.New(command.Params{
		Name: "mediaclient",
		Desc: "desc",
		SubCommands: []*command.Command{
			command.New(command.Params{Name: "version", Desc: "show version"}),
		},
	})
	root.SetWriter(&out)

	err := root.Exec(context.Background(), []string{"-h"})
	assert.True(t, multierr.Is(err, pflag.ErrHelp))
	assert.Contains(t, out.String(), "Usage: mediaclient [COMMAND] [ARG...]")
	assert.Contains(t, out.String(), "  version      show version\n")
}

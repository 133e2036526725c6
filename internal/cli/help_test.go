package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoot() *cobra.Command {
	root := NewRootCommand()
	root.AddCommand(&cobra.Command{
		Use:   "run <workflow>",
		Short: "Execute a workflow",
		RunE:  func(cmd *cobra.Command, args []string) error { return nil },
	})
	return root
}

func TestHelpCommandJSONListsCommands(t *testing.T) {
	root := testRoot()
	help := NewHelpCommand(root)

	var out bytes.Buffer
	help.SetOut(&out)
	require.NoError(t, help.Flags().Set("json", "true"))
	require.NoError(t, help.RunE(help, nil))

	var resp HelpResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))

	names := make([]string, 0, len(resp.Commands))
	for _, c := range resp.Commands {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "run")
	assert.NotEmpty(t, resp.GlobalFlags)
}

func TestHelpCommandJSONSingleCommand(t *testing.T) {
	root := testRoot()
	help := NewHelpCommand(root)

	var out bytes.Buffer
	help.SetOut(&out)
	require.NoError(t, help.Flags().Set("json", "true"))
	require.NoError(t, help.RunE(help, []string{"run"}))

	var resp HelpResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Command)
	assert.Equal(t, "run", resp.Command.Name)
}

func TestHelpCommandUnknownCommand(t *testing.T) {
	root := testRoot()
	help := NewHelpCommand(root)
	help.SetOut(new(bytes.Buffer))

	err := help.RunE(help, []string{"no-such-command"})
	assert.Error(t, err)
}

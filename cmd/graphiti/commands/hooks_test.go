package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumatoshi-tech/graphiti/pkg/hooks"
)

func TestHooksInstallThenStatusThenUninstall(t *testing.T) {
	root := t.TempDir()
	t.Setenv("GRAPHITI_PROJECT_ROOT", root)

	installCmd := NewHooksCommand()
	installOut := &bytes.Buffer{}
	installCmd.SetOut(installOut)
	installCmd.SetArgs([]string{"install"})
	require.NoError(t, installCmd.Execute())

	for _, name := range hooks.HookNames {
		path := filepath.Join(root, ".git", "hooks", name)
		_, err := os.Stat(path)
		assert.NoError(t, err, "expected hook %s to exist", name)
	}

	statusCmd := NewHooksCommand()
	statusOut := &bytes.Buffer{}
	statusCmd.SetOut(statusOut)
	statusCmd.SetArgs([]string{"status"})
	require.NoError(t, statusCmd.Execute())
	assert.Contains(t, statusOut.String(), "true")

	uninstallCmd := NewHooksCommand()
	uninstallCmd.SetOut(&bytes.Buffer{})
	uninstallCmd.SetArgs([]string{"uninstall"})
	require.NoError(t, uninstallCmd.Execute())

	statusCmd2 := NewHooksCommand()
	statusOut2 := &bytes.Buffer{}
	statusCmd2.SetOut(statusOut2)
	statusCmd2.SetArgs([]string{"status", "--format", "json"})
	require.NoError(t, statusCmd2.Execute())
	assert.Contains(t, statusOut2.String(), "false")
}

package hooks_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumatoshi-tech/graphiti/pkg/hooks"
)

func TestInstall_NewFile_WritesTemplateAndExecutable(t *testing.T) {
	dir := t.TempDir()
	installer := hooks.New(dir)

	require.NoError(t, installer.Install("post-commit"))

	info, err := os.Stat(filepath.Join(dir, "post-commit"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o111)
	assert.True(t, installer.IsInstalled("post-commit"))
}

func TestInstall_TwiceLeavesExactlyOneMarker(t *testing.T) {
	dir := t.TempDir()
	installer := hooks.New(dir)

	require.NoError(t, installer.Install("post-commit"))
	require.NoError(t, installer.Install("post-commit"))

	content, err := os.ReadFile(filepath.Join(dir, "post-commit"))
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(string(content), "GRAPHITI_HOOK_START"))
}

func TestInstall_AppendsToUnrelatedExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "post-commit")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho custom\n"), 0o755))

	installer := hooks.New(dir)
	require.NoError(t, installer.Install("post-commit"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "echo custom")
	assert.Contains(t, string(content), "GRAPHITI_HOOK_START")
}

func TestUninstall_RemovesBlockAndDeletesIfEmpty(t *testing.T) {
	dir := t.TempDir()
	installer := hooks.New(dir)
	require.NoError(t, installer.Install("post-commit"))

	require.NoError(t, installer.Uninstall("post-commit"))

	_, err := os.Stat(filepath.Join(dir, "post-commit"))
	assert.True(t, os.IsNotExist(err))
}

func TestUninstall_KeepsUnrelatedContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "post-commit")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho custom\n"), 0o755))

	installer := hooks.New(dir)
	require.NoError(t, installer.Install("post-commit"))
	require.NoError(t, installer.Uninstall("post-commit"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "echo custom")
	assert.NotContains(t, string(content), "GRAPHITI_HOOK_START")
}

func TestUpgrade_StripsLegacyMarkerAndReinstalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "post-commit")
	legacy := "#!/bin/sh\n# GRAPHITI_HOOK_START\necho auto_heal legacy\n# GRAPHITI_HOOK_END\n"
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o755))

	installer := hooks.New(dir)
	require.NoError(t, installer.Upgrade("post-commit"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "auto_heal")
	assert.True(t, installer.IsInstalled("post-commit"))
}

func TestIsInstalled_FalseWhenAbsent(t *testing.T) {
	installer := hooks.New(t.TempDir())
	assert.False(t, installer.IsInstalled("post-commit"))
}

func TestSettingsHook_InstallThenRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"other_key":"preserved"}`), 0o644))

	require.NoError(t, hooks.InstallSettingsHook(path, "graphiti capture --auto"))

	installed, err := hooks.HasSettingsHook(path)
	require.NoError(t, err)
	assert.True(t, installed)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "preserved")

	require.NoError(t, hooks.RemoveSettingsHook(path))

	installed, err = hooks.HasSettingsHook(path)
	require.NoError(t, err)
	assert.False(t, installed)
}

func TestSettingsHook_InstallTwice_NoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	require.NoError(t, hooks.InstallSettingsHook(path, "graphiti capture --auto"))
	require.NoError(t, hooks.InstallSettingsHook(path, "graphiti capture --auto"))

	installed, err := hooks.HasSettingsHook(path)
	require.NoError(t, err)
	assert.True(t, installed)
}

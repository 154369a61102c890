package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "quanterra dev")
}

func TestRunCmdMissingConfig(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"run", "--config", "/nonexistent/quanterra.yaml"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "读取配置文件失败")
}

func TestServiceSubcommands(t *testing.T) {
	root := newRootCmd()
	svc, _, err := root.Find([]string{"service"})
	require.NoError(t, err)

	var names []string
	for _, c := range svc.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"install", "uninstall", "start", "stop", "restart", "run", "status"}, names)
}

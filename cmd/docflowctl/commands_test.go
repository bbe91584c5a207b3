package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateAdminRequiresCredentialFlags(t *testing.T) {
	cmd := createAdminCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--first-name", "Ops"})

	err := cmd.Execute()
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "email"), "got %v", err)
	require.True(t, strings.Contains(err.Error(), "password"), "got %v", err)
}

func TestCreateAdminFlags(t *testing.T) {
	cmd := createAdminCmd()
	for _, name := range []string{"email", "password", "first-name", "last-name"} {
		require.NotNil(t, cmd.Flags().Lookup(name), "missing flag %s", name)
	}
}

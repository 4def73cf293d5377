package sshchannel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostnameFromPrompt(t *testing.T) {
	cases := map[string]string{
		"switch1#":     "switch1",
		"router1>":     "router1",
		"sw1(config)#": "sw1",
		"admin@mx480>": "mx480",
		"core-a.pod1#": "core-a.pod1",
		"user@host:~$": "host:~",
		"plainprompt":  "plainprompt",
	}
	for prompt, want := range cases {
		assert.Equal(t, want, hostnameFromPrompt(prompt), prompt)
	}
}

func TestPromptReturned(t *testing.T) {
	out := "some output\nmore output\nswitch1#"
	assert.True(t, promptReturned(out, "switch1#"))

	// Mode suffix still counts as the prompt coming back.
	assert.True(t, promptReturned("output\nswitch1(config)#", "switch1#"))

	assert.False(t, promptReturned("output\nstill streaming", "switch1#"))
	assert.False(t, promptReturned("", "switch1#"))
}

func TestAnsiStripping(t *testing.T) {
	in := "\x1b[2Jshow version\x1b[0m\nCisco IOS\x1b[?25h"
	out := ansiPattern.ReplaceAllString(in, "")
	assert.Equal(t, "show version\nCisco IOS", out)
}

func TestAuthMethodsRequireMaterial(t *testing.T) {
	_, err := authMethods(Config{Username: "admin"})
	require.Error(t, err)

	methods, err := authMethods(Config{Username: "admin", Password: "secret"})
	require.NoError(t, err)
	// Password plus keyboard-interactive fallback.
	assert.Len(t, methods, 2)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Host: "10.0.0.1", Username: "admin"}
	cfg.withDefaults()
	assert.Equal(t, 22, cfg.Port)
	assert.NotZero(t, cfg.ConnectTimeout)
	assert.NotZero(t, cfg.CommandTimeout)
	assert.NotNil(t, cfg.Logger)
}

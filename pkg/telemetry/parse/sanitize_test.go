package parse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scottpeterman/wirlwind/pkg/telemetry/parse"
)

func TestSanitizeStripsEchoAndPrompt(t *testing.T) {
	raw := "show ip interface brief\n" +
		"Interface   IP-Address   Status   Protocol\n" +
		"Gi0/0       10.0.0.1     up       up\n" +
		"router1#\n"

	out := parse.Sanitize(raw, "show ip interface brief", "router1#", nil)

	assert.Equal(t,
		"Interface   IP-Address   Status   Protocol\n"+
			"Gi0/0       10.0.0.1     up       up",
		out)
}

func TestSanitizeEchoWithPromptPrefix(t *testing.T) {
	raw := "router1#show version\nCisco IOS XE Software\nrouter1#"
	out := parse.Sanitize(raw, "show version", "router1#", nil)
	assert.Equal(t, "Cisco IOS XE Software", out)
}

func TestSanitizePreservesIntermediateLines(t *testing.T) {
	// Data lines that merely resemble prompts must survive.
	raw := "show logging\n" +
		"%LINK-3-UPDOWN: Interface GigabitEthernet0/1, changed state to up\n" +
		"100 messages logged\n" +
		"sw1>"
	out := parse.Sanitize(raw, "show logging", "sw1>", nil)

	assert.Contains(t, out, "%LINK-3-UPDOWN")
	assert.Contains(t, out, "100 messages logged")
	assert.NotContains(t, out, "sw1>")
}

func TestSanitizeNoEchoNoPrompt(t *testing.T) {
	raw := "line one\nline two"
	out := parse.Sanitize(raw, "some other command", "", nil)
	assert.Equal(t, "line one\nline two", out)
}

func TestSanitizeDoesNotStripNumericLastLine(t *testing.T) {
	// A last line starting with a digit is data, not a prompt.
	raw := "header\n12345"
	out := parse.Sanitize(raw, "", "", nil)
	assert.Equal(t, "header\n12345", out)
}

func TestSanitizeEmptyInput(t *testing.T) {
	assert.Equal(t, "", parse.Sanitize("", "show version", "r1#", nil))
}

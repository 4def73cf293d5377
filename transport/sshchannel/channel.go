// Package sshchannel implements the engine's command channel over SSH.
//
// Network equipment needs an interactive shell (exec channels are refused or
// unpaginated on many platforms), so the channel requests a PTY, detects the
// device prompt, and frames each command's output by watching for the prompt
// to return. Legacy mode widens the cipher/KEX/host-key sets for old gear.
package sshchannel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// ErrReadTimeout is returned when a command's output did not complete within
// the per-command read timeout.
var ErrReadTimeout = errors.New("command read timeout")

// ansiPattern strips terminal escape sequences some platforms emit even on
// dumb terminals.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]|\x1b[=>]`)

// Config describes one SSH target.
type Config struct {
	Host     string
	Port     int
	Username string

	// Password and/or private key material. KeyData takes precedence over
	// KeyPath when both are set.
	Password string
	KeyPath  string
	KeyData  []byte

	// LegacyMode widens cipher, KEX, and host key algorithm sets to cover
	// equipment running old SSH stacks. The zero value is off; the CLI sets
	// it unless --no-legacy is given.
	LegacyMode bool

	// ConnectTimeout bounds the TCP+handshake phase. 0 = 30s.
	ConnectTimeout time.Duration

	// CommandTimeout bounds each command's read. 0 = 15s.
	CommandTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) withDefaults() {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Channel
// ─────────────────────────────────────────────────────────────────────────────

// Channel is one live interactive SSH session. It is not safe for concurrent
// use; the poll engine serializes all commands.
type Channel struct {
	cfg    Config
	logger *slog.Logger

	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser

	prompt   string
	hostname string

	mu     sync.Mutex
	buf    strings.Builder
	closed bool
	rdErr  error
}

// Dial connects, opens the interactive shell, and detects the prompt.
func Dial(ctx context.Context, cfg Config) (*Channel, error) {
	cfg.withDefaults()

	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.ConnectTimeout,
	}
	if cfg.LegacyMode {
		applyLegacyAlgorithms(sshCfg)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	ch := &Channel{cfg: cfg, logger: cfg.Logger, client: client}
	if err := ch.openShell(); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := ch.detectPrompt(ctx); err != nil {
		_ = ch.Close()
		return nil, err
	}

	cfg.Logger.Info("ssh session established",
		"host", cfg.Host,
		"prompt", ch.prompt,
		"legacy", cfg.LegacyMode,
	)
	return ch, nil
}

func (c *Channel) openShell() error {
	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("new session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 115200,
		ssh.TTY_OP_OSPEED: 115200,
	}
	if err := session.RequestPty("vt100", 0, 512, modes); err != nil {
		_ = session.Close()
		return fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		_ = session.Close()
		return fmt.Errorf("start shell: %w", err)
	}

	c.session = session
	c.stdin = stdin

	// Reader goroutine: the only consumer of stdout. It appends into the
	// shared buffer until the session dies.
	go func() {
		chunk := make([]byte, 4096)
		for {
			n, err := stdout.Read(chunk)
			if n > 0 {
				c.mu.Lock()
				c.buf.Write(chunk[:n])
				c.mu.Unlock()
			}
			if err != nil {
				c.mu.Lock()
				c.rdErr = err
				c.mu.Unlock()
				return
			}
		}
	}()
	return nil
}

// detectPrompt sends a newline and takes the last non-empty line of the
// settled output as the session prompt, then derives the hostname from it.
func (c *Channel) detectPrompt(ctx context.Context) error {
	if _, err := c.stdin.Write([]byte("\n")); err != nil {
		return fmt.Errorf("prompt probe: %w", err)
	}
	out, err := c.readUntilSettled(ctx, 3*time.Second)
	if err != nil && out == "" {
		return fmt.Errorf("prompt detection: %w", err)
	}

	lines := strings.Split(strings.TrimRight(out, "\r\n "), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			c.prompt = line
			break
		}
	}
	if c.prompt == "" {
		return errors.New("prompt detection: no output")
	}

	c.hostname = hostnameFromPrompt(c.prompt)
	return nil
}

// Run sends a command and returns everything the device printed up to (and
// including) the returned prompt. Blocking is bounded by CommandTimeout;
// cancellation closes the session rather than trying to abort a partial
// read.
func (c *Channel) Run(ctx context.Context, command string) (string, error) {
	c.drain()

	if _, err := c.stdin.Write([]byte(command + "\n")); err != nil {
		return "", fmt.Errorf("write command: %w", err)
	}

	deadline := time.Now().Add(c.cfg.CommandTimeout)
	for {
		select {
		case <-ctx.Done():
			_ = c.Close()
			return "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}

		c.mu.Lock()
		out := c.buf.String()
		rdErr := c.rdErr
		c.mu.Unlock()

		if promptReturned(out, c.prompt) {
			c.drain()
			return ansiPattern.ReplaceAllString(out, ""), nil
		}
		if rdErr != nil {
			return "", fmt.Errorf("session read: %w", rdErr)
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w after %s: %q", ErrReadTimeout, c.cfg.CommandTimeout, command)
		}
	}
}

// Prompt returns the detected session prompt.
func (c *Channel) Prompt() string { return c.prompt }

// Hostname returns the device hostname extracted from the prompt.
func (c *Channel) Hostname() string { return c.hostname }

// Close tears the session down. Safe to call twice.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.session != nil {
		_ = c.session.Close()
	}
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// drain discards any buffered output (previous command remnants, keepalives).
func (c *Channel) drain() {
	c.mu.Lock()
	c.buf.Reset()
	c.mu.Unlock()
}

// readUntilSettled waits for output to stop growing (two consecutive idle
// polls) or the timeout, and returns what arrived.
func (c *Channel) readUntilSettled(ctx context.Context, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	lastLen := -1
	idle := 0

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}

		c.mu.Lock()
		out := c.buf.String()
		rdErr := c.rdErr
		c.mu.Unlock()

		if len(out) == lastLen && len(out) > 0 {
			idle++
			if idle >= 2 {
				return ansiPattern.ReplaceAllString(out, ""), nil
			}
		} else {
			idle = 0
		}
		lastLen = len(out)

		if rdErr != nil {
			return ansiPattern.ReplaceAllString(out, ""), rdErr
		}
		if time.Now().After(deadline) {
			return ansiPattern.ReplaceAllString(out, ""), ErrReadTimeout
		}
	}
}

// promptReturned reports whether the output's last line is the session
// prompt again (possibly with a changed mode suffix, e.g. hostname(config)#).
func promptReturned(out, prompt string) bool {
	trimmed := strings.TrimRight(out, " \r\n")
	idx := strings.LastIndexByte(trimmed, '\n')
	last := strings.TrimSpace(trimmed[idx+1:])
	if last == "" {
		return false
	}
	if last == prompt {
		return true
	}
	base := promptBase(prompt)
	return base != "" && strings.HasPrefix(last, base) && strings.ContainsAny(last[len(last)-1:], "#>$%")
}

// promptBase strips the trailing prompt character.
func promptBase(prompt string) string {
	return strings.TrimRight(prompt, "#>$% ")
}

// hostnameFromPrompt extracts the device hostname from a prompt like
// "switch1#", "router>" or "user@mx480>".
func hostnameFromPrompt(prompt string) string {
	h := promptBase(prompt)
	if at := strings.LastIndexByte(h, '@'); at >= 0 {
		h = h[at+1:]
	}
	if paren := strings.IndexByte(h, '('); paren > 0 {
		h = h[:paren]
	}
	return strings.TrimSpace(h)
}

func authMethods(cfg Config) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	keyData := cfg.KeyData
	if len(keyData) == 0 && cfg.KeyPath != "" {
		data, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", cfg.KeyPath, err)
		}
		keyData = data
	}
	if len(keyData) > 0 {
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
		methods = append(methods, ssh.KeyboardInteractive(
			func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = cfg.Password
				}
				return answers, nil
			}))
	}
	if len(methods) == 0 {
		return nil, errors.New("no authentication material: need a password or key")
	}
	return methods, nil
}

// applyLegacyAlgorithms widens the negotiation sets to cover equipment
// stuck on old SSH stacks (CBC ciphers, group1 KEX, ssh-rsa signatures).
func applyLegacyAlgorithms(cfg *ssh.ClientConfig) {
	cfg.Ciphers = append(cfg.Ciphers,
		"aes128-ctr", "aes192-ctr", "aes256-ctr",
		"aes128-cbc", "aes256-cbc", "3des-cbc",
	)
	cfg.KeyExchanges = append(cfg.KeyExchanges,
		"curve25519-sha256", "ecdh-sha2-nistp256",
		"diffie-hellman-group14-sha256", "diffie-hellman-group14-sha1",
		"diffie-hellman-group1-sha1", "diffie-hellman-group-exchange-sha256",
	)
	cfg.HostKeyAlgorithms = append(cfg.HostKeyAlgorithms,
		"ssh-ed25519", "ecdsa-sha2-nistp256",
		"rsa-sha2-512", "rsa-sha2-256", "ssh-rsa", "ssh-dss",
	)
}

// noopWriter discards log output.
type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

package wireguard

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/chiquitav2/wg-dark/internal/shared/errors"
	"github.com/chiquitav2/wg-dark/internal/shared/logger"
	"github.com/chiquitav2/wg-dark/pkg/crypto"
)

// Runner executes one external command with optional stdin and returns its
// trimmed stdout.
type Runner interface {
	Run(stdin string, name string, args ...string) (string, error)
}

// execRunner runs commands on the host.
type execRunner struct {
	logger *logger.Logger
}

func (r execRunner) Run(stdin string, name string, args ...string) (string, error) {
	cmdline := strings.TrimSpace(name + " " + strings.Join(args, " "))
	r.logger.Debug("$ " + cmdline)

	cmd := exec.Command(name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			return "", errors.NewCommandError(cmdline, exitErr.ExitCode(), stderr.String(), err)
		}
		return "", errors.NewCommandError(cmdline, -1, stderr.String(), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// ExecController implements Controller and KeyGenerator on top of the `ip`
// and `wg` binaries.
type ExecController struct {
	runner Runner
	logger *logger.Logger
}

// NewExecController creates a controller for the host. A nil runner runs real
// commands.
func NewExecController(runner Runner, log *logger.Logger) *ExecController {
	if log == nil {
		log = logger.NewDevelopment("wireguard")
	}
	if runner == nil {
		runner = execRunner{logger: log}
	}
	return &ExecController{runner: runner, logger: log}
}

// GenerateKeypair runs `wg genkey` and feeds the result to `wg pubkey`.
func (c *ExecController) GenerateKeypair() (*crypto.KeyPair, error) {
	priv, err := c.runner.Run("", "wg", "genkey")
	if err != nil {
		return nil, err
	}
	pub, err := c.runner.Run(priv, "wg", "pubkey")
	if err != nil {
		return nil, err
	}
	if !crypto.IsValidKey(priv) || !crypto.IsValidKey(pub) {
		return nil, fmt.Errorf("wg produced a malformed key")
	}
	return &crypto.KeyPair{PrivateKey: priv, PublicKey: pub}, nil
}

func (c *ExecController) CreateInterface(name string) error {
	return c.ip("link", "add", name, "type", "wireguard")
}

func (c *ExecController) SetMTU(name string, mtu int) error {
	return c.ip("link", "set", "mtu", strconv.Itoa(mtu), "dev", name)
}

func (c *ExecController) SetAddress(name, cidr string) error {
	return c.ip("addr", "add", cidr, "dev", name)
}

func (c *ExecController) SetLinkUp(name string) error {
	return c.ip("link", "set", name, "up")
}

func (c *ExecController) AddRoute(name, subnet string) error {
	return c.ip("route", "add", subnet, "dev", name)
}

func (c *ExecController) SetPrivateKeyAndListenPort(name, privateKey string, port int) error {
	return c.mergeConfig(name, RenderInterface(privateKey, port))
}

func (c *ExecController) AddPeerConfig(name, config string) error {
	return c.mergeConfig(name, config)
}

func (c *ExecController) DestroyInterface(name string) error {
	return c.ip("link", "del", "dev", name)
}

// mergeConfig appends stanza text with `wg addconf`, which never clobbers
// existing configuration.
func (c *ExecController) mergeConfig(name, config string) error {
	_, err := c.runner.Run(config, "wg", "addconf", name, "/dev/stdin")
	return err
}

func (c *ExecController) ip(args ...string) error {
	_, err := c.runner.Run("", "ip", args...)
	return err
}

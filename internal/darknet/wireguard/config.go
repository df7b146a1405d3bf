package wireguard

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/gookit/goutil"
)

// PeerStanza is one [Peer] section of a WireGuard config.
type PeerStanza struct {
	PublicKey           string
	Endpoint            string
	AllowedIPs          string
	PersistentKeepalive int

	// Raw is the stanza as parsed, including keys the fields above skip.
	Raw string
}

// Render formats the stanza in wg(8) config syntax.
func (p PeerStanza) Render() string {
	var b strings.Builder
	b.WriteString("[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", p.PublicKey)
	if p.Endpoint != "" {
		fmt.Fprintf(&b, "Endpoint = %s\n", p.Endpoint)
	}
	if p.AllowedIPs != "" {
		fmt.Fprintf(&b, "AllowedIPs = %s\n", p.AllowedIPs)
	}
	if p.PersistentKeepalive > 0 {
		fmt.Fprintf(&b, "PersistentKeepalive = %d\n", p.PersistentKeepalive)
	}
	return b.String()
}

// RenderInterface formats the [Interface] section applied once at bring-up.
func RenderInterface(privateKey string, listenPort int) string {
	return fmt.Sprintf("[Interface]\nPrivateKey = %s\nListenPort = %d\n", privateKey, listenPort)
}

// Config is a parsed WireGuard config file. Peers keeps the raw [Peer] text
// in file order so it can be re-merged verbatim.
type Config struct {
	PrivateKey string
	ListenPort int
	FwMark     string
	Peers      string
	PeerList   []PeerStanza
}

// ParseConfig splits a config into its [Interface] settings and the raw peer
// stanzas. It accepts both saved files and `wg showconf` output.
func ParseConfig(text string) (*Config, error) {
	cfg := &Config{}
	var (
		section string
		peers   strings.Builder
		raw     strings.Builder
		current *PeerStanza
	)

	flush := func() {
		if current != nil {
			current.Raw = raw.String()
			cfg.PeerList = append(cfg.PeerList, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			section = strings.ToLower(strings.Trim(line, "[]"))
			switch section {
			case "interface":
			case "peer":
				if peers.Len() > 0 {
					peers.WriteString("\n")
				}
				peers.WriteString("[Peer]\n")
				raw.Reset()
				raw.WriteString("[Peer]\n")
				current = &PeerStanza{}
			default:
				return nil, fmt.Errorf("line %d: unknown section %q", lineNo, line)
			}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: expected key = value", lineNo)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch section {
		case "interface":
			if err := cfg.setInterfaceField(key, value); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		case "peer":
			peers.WriteString(key + " = " + value + "\n")
			raw.WriteString(key + " = " + value + "\n")
			if err := current.setField(key, value); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
		default:
			return nil, fmt.Errorf("line %d: key %q outside of a section", lineNo, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	flush()

	cfg.Peers = peers.String()
	return cfg, nil
}

func (c *Config) setInterfaceField(key, value string) error {
	switch strings.ToLower(key) {
	case "privatekey":
		c.PrivateKey = value
	case "listenport":
		port, err := goutil.ToInt(value)
		if err != nil {
			return fmt.Errorf("invalid ListenPort %q: %w", value, err)
		}
		c.ListenPort = port
	case "fwmark":
		c.FwMark = value
	}
	return nil
}

func (p *PeerStanza) setField(key, value string) error {
	switch strings.ToLower(key) {
	case "publickey":
		p.PublicKey = value
	case "endpoint":
		p.Endpoint = value
	case "allowedips":
		p.AllowedIPs = value
	case "persistentkeepalive":
		if value == "off" {
			return nil
		}
		keepalive, err := goutil.ToInt(value)
		if err != nil {
			return fmt.Errorf("invalid PersistentKeepalive %q: %w", value, err)
		}
		p.PersistentKeepalive = keepalive
	}
	return nil
}

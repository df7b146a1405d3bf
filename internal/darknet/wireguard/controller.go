// Package wireguard drives a WireGuard interface through the wg and ip utilities.
package wireguard

import (
	"github.com/chiquitav2/wg-dark/pkg/crypto"
)

// Defaults taken from the darknet's addressing plan.
const (
	DefaultMTU                 = 1420
	DefaultListenPort          = 1337
	DefaultSubnet              = "10.13.37.0/24"
	DefaultPersistentKeepalive = 25
)

// Controller is the set of interface operations. Every method maps onto one
// external command; a non-zero exit surfaces as *errors.CommandError.
type Controller interface {
	CreateInterface(name string) error
	SetMTU(name string, mtu int) error
	SetAddress(name, cidr string) error
	SetLinkUp(name string) error
	AddRoute(name, subnet string) error
	// SetPrivateKeyAndListenPort and AddPeerConfig share the additive
	// merge primitive; neither removes previously applied stanzas.
	SetPrivateKeyAndListenPort(name, privateKey string, port int) error
	AddPeerConfig(name, config string) error
	DestroyInterface(name string) error
}

// KeyGenerator produces the session keypair.
type KeyGenerator interface {
	GenerateKeypair() (*crypto.KeyPair, error)
}

// NativeKeyGenerator generates keys in-process without the wg binary.
type NativeKeyGenerator struct{}

// GenerateKeypair implements KeyGenerator.
func (NativeKeyGenerator) GenerateKeypair() (*crypto.KeyPair, error) {
	return crypto.GenerateKeyPair()
}

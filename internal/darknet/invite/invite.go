// Package invite parses darknet invite codes.
package invite

import (
	"net"
	"strings"

	"github.com/chiquitav2/wg-dark/internal/shared/errors"
)

// Code is a parsed host:port:code invite.
type Code struct {
	Host string
	Port string
	Code string
}

// Parse splits raw on ':' and accepts exactly three non-empty fields.
// Values are kept verbatim.
func Parse(raw string) (Code, error) {
	fields := strings.Split(raw, ":")
	if len(fields) != 3 {
		return Code{}, errors.NewMalformedInvite(raw)
	}
	for _, f := range fields {
		if f == "" {
			return Code{}, errors.NewMalformedInvite(raw)
		}
	}
	return Code{Host: fields[0], Port: fields[1], Code: fields[2]}, nil
}

// Addr returns host:port of the coordination server.
func (c Code) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// URL builds an endpoint URL on the coordination server.
func (c Code) URL(scheme, path string) string {
	return scheme + "://" + c.Addr() + path
}

func (c Code) String() string {
	return c.Host + ":" + c.Port + ":" + c.Code
}

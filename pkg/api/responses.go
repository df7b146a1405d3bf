package api

// JoinResponse is returned by the coordination server after redeeming an invite.
type JoinResponse struct {
	Address   string `json:"address"` // CIDR assigned to this host, e.g. 10.13.37.5/24
	PublicKey string `json:"pubkey"`  // the server's WireGuard public key
}

// StatusResponse is returned by GET /status. Peers is an opaque fragment of
// [Peer] stanzas that is forwarded to the interface unparsed.
type StatusResponse struct {
	Peers string `json:"peers"`
}

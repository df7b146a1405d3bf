package api

// JoinRequest is the body of POST /join.
type JoinRequest struct {
	PublicKey string `json:"pubkey"`
	Invite    string `json:"invite"`
}

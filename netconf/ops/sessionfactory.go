package ops

import (
	"context"

	"github.com/modnetconf/broker/netconf/client"

	"golang.org/x/crypto/ssh"
)

// Defines a factory method for instantiating netconf sessions.

// NewSession connects to the  target using the ssh configuration, and establishes
// a netconf session with default configuration.
func NewSession(ctx context.Context, sshcfg *ssh.ClientConfig, target string) (s OpSession, err error) {

	return NewSessionWithConfig(ctx, sshcfg, target, client.DefaultConfig)
}

// NewSessionWithConfig connects to the  target using the ssh configuration, and establishes
// a netconf session with the client configuration.
func NewSessionWithConfig(ctx context.Context, sshcfg *ssh.ClientConfig, target string, cfg *client.Config) (s OpSession, err error) {

	var cs client.Session
	if cs, err = client.NewRPCSessionWithConfig(ctx, sshcfg, target, cfg); err != nil {
		return
	}

	s = &sImpl{Session: cs}
	return
}

// Wrap adapts an already-established client.Session to the richer
// OpSession operation set, without dialing a new connection. Used by
// callers (such as the broker's ncadapter) that establish the transport
// and hello exchange themselves, e.g. via
// client.NewRPCSessionFromSSHClientWithConfig.
func Wrap(cs client.Session) OpSession {
	return &sImpl{Session: cs}
}

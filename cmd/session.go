package cmd

import (
	"context"
	"time"

	"github.com/palfrey/tavern/internal/client"
	"github.com/palfrey/tavern/internal/identity"
	"github.com/palfrey/tavern/internal/logging"
)

// serverTimeout bounds how long one-shot commands wait for a server reply.
const serverTimeout = 15 * time.Second

// Session bundles a running client with the stored identity it was built
// from, for use by the command handlers.
type Session struct {
	Client      *client.Client
	Identity    *identity.Identity
	IdentityDir string

	cancel context.CancelFunc
	done   chan struct{}
}

// StartSession loads the persisted identity, builds the client, and starts
// its owner loop. Callers must Close the session when done.
func StartSession(displayName string) (*Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	dir, err := identity.DefaultDir()
	if err != nil {
		return nil, err
	}
	id, err := identity.Load(dir)
	if err != nil {
		return nil, err
	}
	if displayName != "" && displayName != id.Name {
		id.Name = displayName
		if err := identity.Save(dir, id); err != nil {
			return nil, err
		}
	}

	c := client.New(logging.Component("client"), cfg, id)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Client:      c,
		Identity:    id,
		IdentityDir: dir,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		_ = c.Run(ctx)
	}()
	return s, nil
}

// Close stops the client loop and waits for its shutdown to finish.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

// replyContext returns the context one-shot commands wait on.
func replyContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), serverTimeout)
}

package mailbox

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap/client"
)

// idlePollInterval is used by the client when the server lacks IDLE
const idlePollInterval = 10 * time.Second

// watchUpdates consumes unilateral server updates for the life of the
// connection. Mailbox updates (new or recent messages) raise the activity
// signal; expunges and flag changes caused by our own commands are dropped.
func (c *Client) watchUpdates(updates <-chan client.Update, activity chan<- struct{}, closed <-chan struct{}) {
	for {
		select {
		case u := <-updates:
			if _, ok := u.(*client.MailboxUpdate); !ok {
				continue
			}
			select {
			case activity <- struct{}{}:
			default:
			}
		case <-closed:
			return
		}
	}
}

// WaitForActivity blocks in IDLE until the server reports new mail, the
// timeout elapses or ctx is done. It returns true when new mail was reported,
// including mail reported while other commands were running.
// An error means the connection is no longer usable.
func (c *Client) WaitForActivity(ctx context.Context, timeout time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.client == nil {
		return false, fmt.Errorf("not connected")
	}

	select {
	case <-c.activity:
		return true, nil
	default:
	}

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.client.Idle(stop, &client.IdleOptions{PollInterval: idlePollInterval})
	}()

	c.logger.Debug("waiting in IDLE", "timeout", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var active bool
	select {
	case <-c.activity:
		active = true
	case <-timer.C:
	case <-ctx.Done():
	case err := <-done:
		// IDLE only returns by itself when the connection fails
		if err == nil {
			err = fmt.Errorf("IDLE ended unexpectedly")
		}
		c.connected = false
		return false, fmt.Errorf("IDLE failed: %w", err)
	}

	close(stop)
	if err := <-done; err != nil {
		c.connected = false
		return false, fmt.Errorf("IDLE failed: %w", err)
	}

	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return active, nil
}

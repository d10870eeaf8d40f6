package relay

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSlotTaken is returned by ClaimMain when another instance holds
	// the main-instance slot.
	ErrSlotTaken = errors.New("relay: main instance already registered")
	// ErrNotHolder is returned by ReleaseMain for any token other than
	// the current holder's.
	ErrNotHolder = errors.New("relay: not the registered instance")
)

// mainSlot is the advisory single-owner token. Nothing else in the relay
// consults it; it only lets scoring sessions see whether another session
// already considers itself the live one.
type mainSlot struct {
	holder    string
	claimedAt time.Time
}

// ClaimMain takes the main-instance slot for token if it is free. An
// empty token is replaced with a generated one. On success it returns
// the token now holding the slot; on ErrSlotTaken it returns the
// existing holder's token.
func (r *Relay) ClaimMain(token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if token == "" {
		token = fmt.Sprintf("instance-%d", now.UnixMilli())
	}
	if r.main.holder != "" {
		return r.main.holder, ErrSlotTaken
	}
	r.main = mainSlot{holder: token, claimedAt: now}
	r.logger.Info().Str("instance_id", token).Msg("main instance registered")
	return token, nil
}

// ReleaseMain frees the slot if token is its holder. There is no forced
// takeover.
func (r *Relay) ReleaseMain(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.main.holder == "" || token != r.main.holder {
		return ErrNotHolder
	}
	r.logger.Info().Str("instance_id", token).Msg("main instance unregistered")
	r.main = mainSlot{}
	return nil
}

// MainInstance returns the current holder, if any.
func (r *Relay) MainInstance() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.main.holder, r.main.holder != ""
}

// Package keypool manages the rotating pool of upstream API credentials.
//
// The pool is shared mutable state across concurrent chat requests. Updates
// to last-used and cool-down fields are read-modify-write without locking;
// last write wins. Cool-down windows are coarse (minutes), so a stale read
// costs at most a temporarily suboptimal key choice and self-corrects on
// the next request.
package keypool

import (
	"sort"
	"time"

	"branchchat/pkg/logger"
	"branchchat/pkg/models"
	"branchchat/pkg/store"
	"branchchat/pkg/telemetry"
)

type Pool struct {
	st *store.Store
}

func New(st *store.Store) *Pool {
	return &Pool{st: st}
}

// ListAvailable returns credentials with no active cool-down, ordered by
// ascending last-used time (least recently used first). A credential whose
// cool-down expiry is in the future is never returned.
func (p *Pool) ListAvailable(now time.Time) ([]models.Credential, error) {
	all, err := p.st.ListCredentials()
	if err != nil {
		return nil, err
	}
	out := make([]models.Credential, 0, len(all))
	for _, c := range all {
		if c.Available(now) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastUsedTS < out[j].LastUsedTS })
	return out, nil
}

// MarkCooldown parks a credential until the given expiry after a
// rate-limit response. The targeted record is the only side effect.
func (p *Pool) MarkCooldown(id string, until time.Time) error {
	c, err := p.st.GetCredential(id)
	if err != nil {
		return err
	}
	c.CooldownUntilTS = until.UTC().UnixNano()
	if err := p.st.SaveCredential(c); err != nil {
		return err
	}
	telemetry.CredentialCooldowns.Inc()
	logger.Info("credential_cooled_down", "credential", id, "until", until.UTC().Format(time.RFC3339))
	return nil
}

// MarkUsed records a successful selection of the credential.
func (p *Pool) MarkUsed(id string, at time.Time) error {
	c, err := p.st.GetCredential(id)
	if err != nil {
		return err
	}
	c.LastUsedTS = at.UTC().UnixNano()
	return p.st.SaveCredential(c)
}

// ClearExpiredCooldowns removes cool-down markers whose expiry has passed.
// Availability does not depend on this (ListAvailable compares against the
// clock); it keeps credential listings tidy for the management UI. Returns
// how many records were cleared.
func (p *Pool) ClearExpiredCooldowns(now time.Time) (int, error) {
	all, err := p.st.ListCredentials()
	if err != nil {
		return 0, err
	}
	cleared := 0
	for _, c := range all {
		if c.CooldownUntilTS != 0 && c.CooldownUntilTS < now.UTC().UnixNano() {
			c.CooldownUntilTS = 0
			if err := p.st.SaveCredential(c); err != nil {
				return cleared, err
			}
			cleared++
		}
	}
	return cleared, nil
}

package browser

import "time"

// Sweep runs one eviction pass at now.
func (p *Pool) Sweep(now time.Time) int {
	return p.sweep(now)
}

// Package stats accumulates per-combatant damage and healing figures:
// lifetime totals split by hit kind, plus a short realtime window from
// which the current per-second rate is derived.
package stats

import "time"

// DefaultHorizon is the default realtime window length.
const DefaultHorizon = time.Second

// Values holds cumulative amounts per hit kind. The JSON names are read by
// external tooling and must not change.
type Values struct {
	Normal    uint64 `json:"normal"`
	Critical  uint64 `json:"critical"`
	Lucky     uint64 `json:"lucky"`
	CritLucky uint64 `json:"crit_lucky"`
	HpLessen  uint64 `json:"hpLessen"`
	Total     uint64 `json:"total"`
}

// Counts holds hit counts per hit kind.
type Counts struct {
	Normal    uint64 `json:"normal"`
	Critical  uint64 `json:"critical"`
	Lucky     uint64 `json:"lucky"`
	CritLucky uint64 `json:"crit_lucky"`
	Total     uint64 `json:"total"`
}

// Crits returns every critical hit, lucky or not.
func (c Counts) Crits() uint64 { return c.Critical + c.CritLucky }

// Luckies returns every lucky hit, critical or not.
func (c Counts) Luckies() uint64 { return c.Lucky + c.CritLucky }

// Snapshot is a copy of an aggregate's state.
type Snapshot struct {
	Values         Values  `json:"values"`
	Counts         Counts  `json:"counts"`
	Realtime       float64 `json:"realtime"`
	RealtimeMax    float64 `json:"realtime_max"`
	TotalPerSecond float64 `json:"total_per_second"`
}

type sample struct {
	at    time.Time
	value uint64
}

// Aggregate is one stat kind for one owner. It is not safe for concurrent
// use; the owning store serialises access.
type Aggregate struct {
	values  Values
	counts  Counts
	window  []sample
	horizon time.Duration

	first, last time.Time
	rate        float64
	maxRate     float64
}

// New creates an aggregate with the given realtime horizon.
func New(horizon time.Duration) *Aggregate {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Aggregate{horizon: horizon}
}

// AddRecord records one hit at the current time.
func (a *Aggregate) AddRecord(value uint64, isCrit, isLucky bool, hpLessen uint64) {
	a.AddRecordAt(time.Now(), value, isCrit, isLucky, hpLessen)
}

// AddRecordAt records one hit observed at the given time.
func (a *Aggregate) AddRecordAt(at time.Time, value uint64, isCrit, isLucky bool, hpLessen uint64) {
	switch {
	case isCrit && isLucky:
		a.values.CritLucky += value
		a.counts.CritLucky++
	case isCrit:
		a.values.Critical += value
		a.counts.Critical++
	case isLucky:
		a.values.Lucky += value
		a.counts.Lucky++
	default:
		a.values.Normal += value
		a.counts.Normal++
	}
	a.values.Total += value
	a.values.HpLessen += hpLessen
	a.counts.Total++

	a.window = append(a.window, sample{at: at, value: value})
	if a.first.IsZero() {
		a.first = at
	}
	a.last = at
}

// UpdateRealtime prunes the window to the horizon and recomputes the
// current rate. It is driven by a ticker, not by AddRecord.
func (a *Aggregate) UpdateRealtime(now time.Time) {
	cutoff := now.Add(-a.horizon)
	drop := 0
	for drop < len(a.window) && a.window[drop].at.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		a.window = append(a.window[:0], a.window[drop:]...)
	}

	var sum uint64
	for _, s := range a.window {
		sum += s.value
	}

	span := a.horizon
	if !a.first.IsZero() {
		if elapsed := now.Sub(a.first); elapsed < span {
			span = elapsed
		}
	}
	if span < time.Second && a.horizon >= time.Second {
		span = time.Second
	}
	if span <= 0 {
		span = a.horizon
	}

	a.rate = float64(sum) / span.Seconds()
	if a.rate > a.maxRate {
		a.maxRate = a.rate
	}
}

// TotalPerSecond is the lifetime average between the first and last hit.
func (a *Aggregate) TotalPerSecond() float64 {
	if a.first.IsZero() || !a.last.After(a.first) {
		return 0
	}
	return float64(a.values.Total) / a.last.Sub(a.first).Seconds()
}

// Values returns the cumulative amounts.
func (a *Aggregate) Values() Values { return a.values }

// Counts returns the hit counts.
func (a *Aggregate) Counts() Counts { return a.counts }

// Total returns the cumulative amount over all hit kinds.
func (a *Aggregate) Total() uint64 { return a.values.Total }

// Rate returns the last computed realtime rate.
func (a *Aggregate) Rate() float64 { return a.rate }

// MaxRate returns the highest realtime rate observed.
func (a *Aggregate) MaxRate() float64 { return a.maxRate }

// Snapshot copies the aggregate.
func (a *Aggregate) Snapshot() Snapshot {
	return Snapshot{
		Values:         a.values,
		Counts:         a.counts,
		Realtime:       a.rate,
		RealtimeMax:    a.maxRate,
		TotalPerSecond: a.TotalPerSecond(),
	}
}

// Reset zeroes every total and clears the window.
func (a *Aggregate) Reset() {
	*a = Aggregate{horizon: a.horizon}
}

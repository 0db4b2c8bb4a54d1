package linguist

import (
	"log/slog"

	"github.com/ieee0824/dflat/acoustic"
)

// hmmPool resolves a unit in a left and right context to an HMM. Each
// (unit, lc, rc) triple is folded into one integer id so lookups are keyed
// by (id, position). Results, misses included, are memoised.
//
// A pool is owned by one graph and only used with the graph lock held.
type hmmPool struct {
	model  AcousticModel
	units  *acoustic.UnitManager
	n      int
	logger *slog.Logger
	cache  map[poolKey]*acoustic.HMM
}

type poolKey struct {
	id  int
	pos acoustic.Position
}

func newHMMPool(model AcousticModel, logger *slog.Logger) *hmmPool {
	return &hmmPool{
		model:  model,
		units:  model.Units(),
		n:      model.Units().NumBaseUnits(),
		logger: logger,
		cache:  make(map[poolKey]*acoustic.HMM),
	}
}

// buildID folds a unit and its contexts into one id. Fillers ignore their
// contexts and keep the base id. It returns -1 for a unit the pool does not
// know.
func (p *hmmPool) buildID(base *acoustic.Unit, lc, rc int) int {
	id := base.BaseID()
	if id < 0 || id >= p.n || lc < 0 || lc >= p.n || rc < 0 || rc >= p.n {
		return -1
	}
	if base.IsFiller() {
		return id
	}
	return id*p.n*p.n + lc*p.n + rc
}

// unit returns the context-independent unit with base id, nil for the any
// unit.
func (p *hmmPool) unit(id int) *acoustic.Unit {
	if id == acoustic.AnyID {
		return nil
	}
	u, _ := p.units.ByBaseID(id)
	return u
}

// get returns the HMM of base between lc and rc at pos, or nil when none
// can be found.
func (p *hmmPool) get(base *acoustic.Unit, lc, rc int, pos acoustic.Position) *acoustic.HMM {
	id := p.buildID(base, lc, rc)
	if id < 0 {
		p.logger.Error("unit outside the hmm pool", "unit", base.String(), "lc", lc, "rc", rc)
		return nil
	}
	key := poolKey{id: id, pos: pos}
	if h, ok := p.cache[key]; ok {
		return h
	}
	unit := base
	if !base.IsFiller() {
		unit = p.units.GetCD(base, p.unit(lc), p.unit(rc))
	}
	h, err := p.model.LookupNearestHMM(unit, pos, true)
	switch {
	case err != nil:
		p.logger.Error("resolving hmm", "unit", unit.String(), "position", pos.String(), "err", err)
		h = nil
	case h == nil:
		p.logger.Debug("missing hmm", "unit", unit.String(), "position", pos.String())
	}
	p.cache[key] = h
	return h
}

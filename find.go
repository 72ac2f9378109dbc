package mimic

// FindOptions controls how Find scans memory.
type FindOptions struct {
	// Scan stride and comparison width in bytes. Defaults to 1.
	CharBytes uint64

	// Maximum number of symbolic candidate positions to collect before the
	// scan stops early. Defaults to Limits.MaxSymbolicChars.
	MaxSymbolic int

	// Result address used when no position can match.
	// Defaults to a null pointer.
	Default Expr
}

// FindResult holds the outcome of a memory scan.
type FindResult struct {
	// Address expression for the first matching position. Constant when the
	// scan proved a unique match, otherwise a fresh symbolic value related
	// to the candidate positions by Constraints.
	Addr Expr

	// Constraints relating Addr to the candidate positions. The caller
	// decides whether to add them to the state.
	Constraints []Expr

	// Byte offsets of all candidate positions, ascending.
	Offsets []uint64
}

// MultiMatch returns true if more than one position may match.
func (r *FindResult) MultiMatch() bool {
	return len(r.Offsets) > 1
}

// MaxIndex returns the highest candidate byte offset, or 0 if none exist.
func (r *FindResult) MaxIndex() uint64 {
	if len(r.Offsets) == 0 {
		return 0
	}
	return r.Offsets[len(r.Offsets)-1]
}

// Find scans memory from start for a value equal to pattern and returns an
// address expression for the first match.
//
// The scan walks forward one stride at a time and compares each loaded value
// to pattern. Comparisons that are constant-false are skipped and a
// constant-true comparison ends the scan. Symbolic comparisons become
// candidate positions, each guarded by the negation of every earlier
// candidate so that the result always models the first match. If no position
// can match, the result address is the configured default.
//
// The scan is bounded by maxBytes and by the end of the allocation
// containing start. Find never narrows the state; returned constraints are
// applied by the caller.
func (m *Machine) Find(s *ExecutionState, start *ConstantExpr, pattern Expr, maxBytes uint64, opt FindOptions) (*FindResult, error) {
	charBytes := opt.CharBytes
	if charBytes == 0 {
		charBytes = 1
	}
	maxSymbolic := opt.MaxSymbolic
	if maxSymbolic == 0 {
		maxSymbolic = m.Limits.MaxSymbolicChars
	}
	def := opt.Default
	if def == nil {
		def = NewConstantExpr(0, m.arch.PointerWidth)
	}
	assert(uint64(ExprWidth(pattern)) == charBytes*8, "find: pattern width mismatch: %d != %d", ExprWidth(pattern), charBytes*8)

	// Never scan past the end of the enclosing allocation.
	remain, ok := s.SizeofAlloc(start)
	if !ok {
		return nil, ErrNoAllocation
	}
	if maxBytes > remain {
		maxBytes = remain
	}

	if maxBytes < charBytes {
		return &FindResult{Addr: start}, nil
	}

	type candidate struct {
		offset uint64
		eq     Expr
	}
	var candidates []candidate
	terminated := false // scan ended on a provable match

	var symbolicN int
	for off := uint64(0); off+charBytes <= maxBytes; off += charBytes {
		value, err := s.Load(start.Add(NewConstantExpr(off, start.Width)), uint(charBytes*8))
		if err != nil {
			return nil, err
		}

		eq := NewBinaryExpr(EQ, value, pattern)
		if IsConstantFalse(eq) {
			continue
		}
		candidates = append(candidates, candidate{offset: off, eq: eq})

		if IsConstantTrue(eq) {
			terminated = true
			break
		}
		if symbolicN++; symbolicN >= maxSymbolic {
			m.Logger.Debug("find: symbolic candidate limit reached", "start", start.Value, "limit", maxSymbolic)
			break
		}
	}

	// No position can match.
	if len(candidates) == 0 {
		return &FindResult{Addr: def}, nil
	}

	// A provable match with no earlier symbolic positions needs no constraints.
	if len(candidates) == 1 && terminated {
		return &FindResult{
			Addr:    start.Add(NewConstantExpr(candidates[0].offset, start.Width)),
			Offsets: []uint64{candidates[0].offset},
		}, nil
	}

	// Build one disjunction over all candidate positions. Matching at a
	// position requires every earlier candidate to have failed.
	addr := s.NewSymbolic(m.arch.PointerWidth)
	disjuncts := make([]Expr, 0, len(candidates)+1)
	offsets := make([]uint64, 0, len(candidates))
	for i, cand := range candidates {
		conds := []Expr{
			NewBinaryExpr(EQ, addr, start.Add(NewConstantExpr(cand.offset, start.Width))),
			cand.eq,
		}
		for _, prev := range candidates[:i] {
			conds = append(conds, NewIsZeroExpr(prev.eq))
		}
		disjuncts = append(disjuncts, NewAllExpr(conds...))
		offsets = append(offsets, cand.offset)
	}

	// Unless the scan proved a match, the search may also fail everywhere.
	if !terminated {
		conds := []Expr{NewBinaryExpr(EQ, addr, def)}
		for _, cand := range candidates {
			conds = append(conds, NewIsZeroExpr(cand.eq))
		}
		disjuncts = append(disjuncts, NewAllExpr(conds...))
	}

	return &FindResult{
		Addr:        addr,
		Constraints: []Expr{NewAnyExpr(disjuncts...)},
		Offsets:     offsets,
	}, nil
}

package lexer

import spec "github.com/nihei9/sapling/spec/grammar"

type lexSpec struct {
	spec *spec.LexicalSpec
}

func newLexSpec(spec *spec.LexicalSpec) *lexSpec {
	return &lexSpec{
		spec: spec,
	}
}

func (s *lexSpec) modeCount() int {
	return len(s.spec.Specs)
}

func (s *lexSpec) modeName(mode ModeID) string {
	return s.spec.ModeNames[mode].String()
}

func (s *lexSpec) initialState(mode ModeID) StateID {
	return StateID(s.spec.Specs[mode].DFA.InitialStateID.Int())
}

func (s *lexSpec) nextState(mode ModeID, state StateID, v int) (StateID, bool) {
	switch s.spec.CompressionLevel {
	case 2:
		tran := s.spec.Specs[mode].DFA.Transition
		rowNum := tran.RowNums[state]
		d := tran.UniqueEntries.RowDisplacement[rowNum]
		if tran.UniqueEntries.Bounds[d+v] != rowNum {
			return StateID(tran.UniqueEntries.EmptyValue.Int()), false
		}
		next := tran.UniqueEntries.Entries[d+v]
		return StateID(next.Int()), next != spec.StateIDNil
	case 1:
		tran := s.spec.Specs[mode].DFA.Transition
		next := tran.UncompressedUniqueEntries[tran.RowNums[state]*tran.OriginalColCount+v]
		return StateID(next.Int()), next != spec.StateIDNil
	}

	modeSpec := s.spec.Specs[mode]
	next := modeSpec.DFA.UncompressedTransition[state.Int()*modeSpec.DFA.ColCount+v]
	return StateID(next.Int()), next != spec.StateIDNil
}

func (s *lexSpec) accept(mode ModeID, state StateID) (ModeKindID, bool) {
	modeKindID := s.spec.Specs[mode].DFA.AcceptingStates[state]
	return ModeKindID(modeKindID.Int()), modeKindID != spec.LexModeKindIDNil
}

func (s *lexSpec) kindID(mode ModeID, modeKind ModeKindID) KindID {
	return KindID(s.spec.KindIDs[mode][modeKind].Int())
}

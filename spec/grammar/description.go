package grammar

type Terminal struct {
	Number        int    `json:"number"`
	Name          string `json:"name"`
	Anonymous     bool   `json:"anonymous"`
	Alias         string `json:"alias"`
	Pattern       string `json:"pattern"`
	Skip          bool   `json:"skip"`
	External      bool   `json:"external"`
	Precedence    int    `json:"prec"`
	Associativity string `json:"assoc"`
}

type NonTerminal struct {
	Number    int    `json:"number"`
	Name      string `json:"name"`
	Hidden    bool   `json:"hidden"`
	Supertype bool   `json:"supertype"`
	GLR       bool   `json:"glr"`
}

type Production struct {
	Number        int    `json:"number"`
	LHS           int    `json:"lhs"`
	RHS           []int  `json:"rhs"`
	Precedence    int    `json:"prec"`
	Associativity string `json:"assoc"`
}

type Item struct {
	Production int `json:"production"`
	Dot        int `json:"dot"`
}

type Transition struct {
	Symbol int `json:"symbol"`
	State  int `json:"state"`
}

type Reduce struct {
	LookAhead  []int `json:"look_ahead"`
	Production int   `json:"production"`
}

// SRConflict is a shift/reduce conflict. When the conflict is split for a GLR
// parser, neither AdoptedState nor AdoptedProduction is set.
type SRConflict struct {
	Symbol            int  `json:"symbol"`
	State             int  `json:"state"`
	Production        int  `json:"production"`
	AdoptedState      *int `json:"adopted_state"`
	AdoptedProduction *int `json:"adopted_production"`
	ResolvedBy        int  `json:"resolved_by"`
}

// RRConflict is a reduce/reduce conflict. AdoptedProduction is 0 when the
// conflict is split for a GLR parser.
type RRConflict struct {
	Symbol            int `json:"symbol"`
	Production1       int `json:"production_1"`
	Production2       int `json:"production_2"`
	AdoptedProduction int `json:"adopted_production"`
	ResolvedBy        int `json:"resolved_by"`
}

type State struct {
	Number     int           `json:"number"`
	Kernel     []*Item       `json:"kernel"`
	LexMode    int           `json:"lex_mode"`
	Shift      []*Transition `json:"shift"`
	Reduce     []*Reduce     `json:"reduce"`
	GoTo       []*Transition `json:"goto"`
	SRConflict []*SRConflict `json:"sr_conflict"`
	RRConflict []*RRConflict `json:"rr_conflict"`
}

type LexMode struct {
	Number    int    `json:"number"`
	Name      string `json:"name"`
	Terminals []int  `json:"terminals"`
}

type Report struct {
	Name         string         `json:"name"`
	Terminals    []*Terminal    `json:"terminals"`
	NonTerminals []*NonTerminal `json:"non_terminals"`
	Productions  []*Production  `json:"productions"`
	LexModes     []*LexMode     `json:"lex_modes"`
	States       []*State       `json:"states"`
}

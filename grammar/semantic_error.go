package grammar

// GrammarError is the cause of a SpecError detected while validating a grammar.
type GrammarError struct {
	message string
}

func newGrammarError(message string) *GrammarError {
	return &GrammarError{
		message: message,
	}
}

func (e *GrammarError) Error() string {
	return e.message
}

var (
	semErrNoGrammarName         = newGrammarError("name is missing")
	semErrSpellingInconsistency = newGrammarError("the identifiers are treated as the same. please use the same spelling")
	semErrDuplicateAssoc        = newGrammarError("associativity and precedence cannot be specified multiple times for a symbol")
	semErrUndefinedPrec         = newGrammarError("symbol must has precedence")
	semErrUndefinedOrdSym       = newGrammarError("undefined ordered symbol")
	semErrUnusedProduction      = newGrammarError("unused production")
	semErrUnusedTerminal        = newGrammarError("unused terminal")
	semErrTermCannotBeSkipped   = newGrammarError("a terminal used in productions cannot be skipped")
	semErrNoProduction          = newGrammarError("a grammar needs at least one production")
	semErrUnproductive          = newGrammarError("unproductive non-terminal")
	semErrLeftRecursion         = newGrammarError("left recursion without a base case")
	semErrUndefinedSym          = newGrammarError("undefined symbol")
	semErrDuplicateProduction   = newGrammarError("duplicate production")
	semErrDuplicateTerminal     = newGrammarError("duplicate terminal")
	semErrDuplicateFragment     = newGrammarError("duplicate fragment")
	semErrDuplicateName         = newGrammarError("duplicate names are not allowed between terminals and non-terminals")
	semErrErrSymIsReserved      = newGrammarError("symbol 'error' is reserved as a terminal symbol")
	semErrDuplicateLabel        = newGrammarError("a label must be unique in an alternative")
	semErrInvalidLabel          = newGrammarError("a label must differ from terminal symbols or non-terminal symbols")
	semErrDirInvalidName        = newGrammarError("invalid directive name")
	semErrDirInvalidParam       = newGrammarError("invalid parameter")
	semErrDuplicateDir          = newGrammarError("a directive must not be duplicated")
	semErrInvalidProdDir        = newGrammarError("invalid production directive")
	semErrInvalidAltDir         = newGrammarError("invalid alternative directive")
)

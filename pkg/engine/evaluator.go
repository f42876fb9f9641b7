package engine

// Truth is a three-valued truth value used while a configuration is only
// partially decided.
type Truth int8

const (
	TruthUnknown Truth = iota
	TruthFalse
	TruthTrue
)

// String implements fmt.Stringer.
func (t Truth) String() string {
	switch t {
	case TruthTrue:
		return "true"
	case TruthFalse:
		return "false"
	default:
		return "unknown"
	}
}

func truthOf(b bool) Truth {
	if b {
		return TruthTrue
	}
	return TruthFalse
}

func (t Truth) not() Truth {
	switch t {
	case TruthTrue:
		return TruthFalse
	case TruthFalse:
		return TruthTrue
	default:
		return TruthUnknown
	}
}

// Evaluate evaluates f against cfg: a feature is true iff it is selected.
// AND and OR short-circuit left to right.
func Evaluate(f *Formula, cfg Configuration) bool {
	return evalBool(f.root, cfg.Has)
}

// Eval is shorthand for Evaluate(f, cfg).
func (f *Formula) Eval(cfg Configuration) bool {
	return Evaluate(f, cfg)
}

// EvaluateWith evaluates f with an arbitrary assignment function.
func EvaluateWith(f *Formula, value func(id string) bool) bool {
	return evalBool(f.root, value)
}

func evalBool(n *node, value func(string) bool) bool {
	switch n.op {
	case OpVar:
		return value(n.name)
	case OpConst:
		return n.value
	case OpNot:
		return !evalBool(n.left, value)
	case OpAnd:
		return evalBool(n.left, value) && evalBool(n.right, value)
	case OpOr:
		return evalBool(n.left, value) || evalBool(n.right, value)
	case OpImplies:
		return !evalBool(n.left, value) || evalBool(n.right, value)
	case OpIff:
		return evalBool(n.left, value) == evalBool(n.right, value)
	default:
		return false
	}
}

// EvaluatePartial evaluates f under a partial assignment using Kleene
// semantics. A TruthFalse result means no completion of the assignment can
// satisfy f.
func EvaluatePartial(f *Formula, value func(id string) Truth) Truth {
	return evalPartial(f.root, value)
}

func evalPartial(n *node, value func(string) Truth) Truth {
	switch n.op {
	case OpVar:
		return value(n.name)
	case OpConst:
		return truthOf(n.value)
	case OpNot:
		return evalPartial(n.left, value).not()
	case OpAnd:
		l := evalPartial(n.left, value)
		if l == TruthFalse {
			return TruthFalse
		}
		r := evalPartial(n.right, value)
		if r == TruthFalse {
			return TruthFalse
		}
		if l == TruthTrue && r == TruthTrue {
			return TruthTrue
		}
		return TruthUnknown
	case OpOr:
		l := evalPartial(n.left, value)
		if l == TruthTrue {
			return TruthTrue
		}
		r := evalPartial(n.right, value)
		if r == TruthTrue {
			return TruthTrue
		}
		if l == TruthFalse && r == TruthFalse {
			return TruthFalse
		}
		return TruthUnknown
	case OpImplies:
		l := evalPartial(n.left, value)
		if l == TruthFalse {
			return TruthTrue
		}
		r := evalPartial(n.right, value)
		if r == TruthTrue {
			return TruthTrue
		}
		if l == TruthTrue && r == TruthFalse {
			return TruthFalse
		}
		return TruthUnknown
	case OpIff:
		l := evalPartial(n.left, value)
		if l == TruthUnknown {
			return TruthUnknown
		}
		r := evalPartial(n.right, value)
		if r == TruthUnknown {
			return TruthUnknown
		}
		return truthOf(l == r)
	default:
		return TruthUnknown
	}
}

package expr

import "fmt"

// Node is one vertex of the criterion AST.
type Node interface {
	node()
}

// Literal is a constant: float64, string, bool, nil, EmptyArray or EmptyObject.
type Literal struct {
	Value any
}

// EmptyArray and EmptyObject are the structural emptiness literals. Comparing
// against them tests the resolved value's emptiness, never string equality.
type (
	EmptyArray  struct{}
	EmptyObject struct{}
)

// Path is a dotted path into the metrics record tree.
type Path struct {
	Dotted string
}

// Length is the `.length` accessor applied to an array-valued path.
type Length struct {
	Of *Path
}

// Cmp is a binary comparison.
type Cmp struct {
	Op    string // == != > >= < <=
	Left  Node
	Right Node
}

// And is logical conjunction (AND and its synonym BUT).
type And struct {
	Left  Node
	Right Node
}

// Or is logical disjunction.
type Or struct {
	Left  Node
	Right Node
}

func (*Literal) node() {}
func (*Path) node()    {}
func (*Length) node()  {}
func (*Cmp) node()     {}
func (*And) node()     {}
func (*Or) node()      {}

// Parse builds the AST for a single-line criterion expression.
func Parse(input string) (Node, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, tokens: tokens}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected %q after expression", p.peek().text)
	}
	return node, nil
}

type parser struct {
	input  string
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{
		Expression: p.input,
		Pos:        p.peek().pos,
		Message:    fmt.Sprintf(format, args...),
	}
}

// parseOr := and ( "OR" and )*
func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

// parseAnd := cmp ( ("AND"|"BUT") cmp )*
func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

// parseCmp := atom ( cmpOp atom )?
func (p *parser) parseCmp() (Node, error) {
	left, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokCmpOp {
		op := p.next().text
		right, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		return &Cmp{Op: op, Left: left, Right: right}, nil
	}
	return left, nil
}

// parseAtom := "(" expr ")" | literal | path | path ".length"
func (p *parser) parseAtom() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, p.errorf("expected closing parenthesis")
		}
		p.next()
		return inner, nil

	case tokNumber:
		p.next()
		return &Literal{Value: t.num}, nil
	case tokString:
		p.next()
		return &Literal{Value: t.text}, nil
	case tokBool:
		p.next()
		return &Literal{Value: t.text == "true"}, nil
	case tokNull:
		p.next()
		return &Literal{Value: nil}, nil
	case tokEmptyArray:
		p.next()
		return &Literal{Value: EmptyArray{}}, nil
	case tokEmptyObject:
		p.next()
		return &Literal{Value: EmptyObject{}}, nil

	case tokPath:
		p.next()
		// A trailing .length segment is the accessor, not a field: the
		// criterion language reserves it.
		if dotted, ok := trimLengthSuffix(t.text); ok {
			return &Length{Of: &Path{Dotted: dotted}}, nil
		}
		return &Path{Dotted: t.text}, nil

	default:
		return nil, p.errorf("expected a value, path or parenthesized expression")
	}
}

func trimLengthSuffix(dotted string) (string, bool) {
	const suffix = ".length"
	if len(dotted) > len(suffix) && dotted[len(dotted)-len(suffix):] == suffix {
		return dotted[:len(dotted)-len(suffix)], true
	}
	return dotted, false
}

package pattern

import (
	"fmt"
	"strconv"
	"strings"
)

// Layer is one voice of a pattern: a mini-notation source call plus its
// chained effects and modifiers.
// Example: s("bd sd hh").bank("RolandTR909").gain(0.8).fast(2)
type Layer struct {
	Source      string             // "s" or "note"
	Mini        string             // raw mini-notation string
	Tokens      []string           // whitespace-split mini-notation tokens
	Bank        string             // sound bank / synth qualifier, if any
	Effects     map[string]float64 // numeric chain methods
	EffectOrder []string           // effect names in first-seen order
	Modifiers   []string           // non-numeric chain method names
}

// AST is the parsed form of a pattern expression: a single layer or a
// stack of layers.
type AST struct {
	Layers []Layer
}

// sourceMethods are the mini-notation entry points.
var sourceMethods = map[string]bool{
	"s":    true,
	"note": true,
}

// bankMethods attach a sound bank or synth to a layer.
var bankMethods = map[string]bool{
	"bank":  true,
	"sound": true,
	"s":     true, // .s("piano") after note(...) selects the synth
}

// Parser is a single-pass scanner over one pattern expression.
type Parser struct {
	input string
	pos   int
}

// NewParser creates a parser for one pattern string.
func NewParser(input string) *Parser {
	return &Parser{input: strings.TrimSpace(input)}
}

// Parse parses the whole input as a single expression: either one layer
// chain or stack(chain, chain, ...). Trailing garbage is an error.
func (p *Parser) Parse() (*AST, error) {
	if p.input == "" {
		return nil, fmt.Errorf("empty pattern")
	}

	p.skipWhitespace()
	name, err := p.readIdentifier()
	if err != nil {
		return nil, err
	}

	ast := &AST{}
	if name == "stack" {
		if err := p.expect('('); err != nil {
			return nil, err
		}
		for {
			p.skipWhitespace()
			layer, err := p.parseLayerChain()
			if err != nil {
				return nil, err
			}
			ast.Layers = append(ast.Layers, *layer)
			p.skipWhitespace()
			if p.peek() == ',' {
				p.pos++
				continue
			}
			break
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
	} else {
		layer, err := p.parseLayerChainFrom(name)
		if err != nil {
			return nil, err
		}
		ast.Layers = append(ast.Layers, *layer)
	}

	p.skipWhitespace()
	if p.pos < len(p.input) {
		return nil, fmt.Errorf("unexpected trailing input at offset %d: %q", p.pos, p.remainderPreview())
	}
	return ast, nil
}

// parseLayerChain parses source(args).method(args)... starting at an
// identifier.
func (p *Parser) parseLayerChain() (*Layer, error) {
	name, err := p.readIdentifier()
	if err != nil {
		return nil, err
	}
	return p.parseLayerChainFrom(name)
}

func (p *Parser) parseLayerChainFrom(source string) (*Layer, error) {
	if !sourceMethods[source] {
		return nil, fmt.Errorf("unknown source method %q (expected s or note)", source)
	}

	args, err := p.parseArgs()
	if err != nil {
		return nil, fmt.Errorf("in %s(...): %w", source, err)
	}
	if len(args) != 1 || args[0].kind != argString {
		return nil, fmt.Errorf("%s(...) requires a single mini-notation string", source)
	}
	if err := checkMiniNotation(args[0].str); err != nil {
		return nil, fmt.Errorf("in %s(%q): %w", source, args[0].str, err)
	}

	layer := &Layer{
		Source:  source,
		Mini:    args[0].str,
		Tokens:  tokenizeMini(args[0].str),
		Effects: map[string]float64{},
	}

	// Chained method calls.
	for {
		p.skipWhitespace()
		if p.peek() != '.' {
			break
		}
		p.pos++
		method, err := p.readIdentifier()
		if err != nil {
			return nil, err
		}
		margs, err := p.parseArgs()
		if err != nil {
			return nil, fmt.Errorf("in .%s(...): %w", method, err)
		}
		applyChainMethod(layer, method, margs)
	}

	return layer, nil
}

// applyChainMethod files a chained call under bank, effects or modifiers.
func applyChainMethod(layer *Layer, method string, args []arg) {
	if bankMethods[method] && len(args) == 1 && args[0].kind == argString {
		layer.Bank = args[0].str
		return
	}
	if len(args) == 1 && args[0].kind == argNumber {
		if _, seen := layer.Effects[method]; !seen {
			layer.EffectOrder = append(layer.EffectOrder, method)
		}
		layer.Effects[method] = args[0].num
		return
	}
	layer.Modifiers = append(layer.Modifiers, method)
}

type argKind int

const (
	argString argKind = iota
	argNumber
	argRaw
)

type arg struct {
	kind argKind
	str  string
	num  float64
}

// parseArgs parses a parenthesized argument list. Arguments may be
// quoted strings, numbers or bare words; nested parens inside bare
// arguments are tracked so chains like .sometimes(x=>x.fast(2)) stay
// well-formed without being interpreted.
func (p *Parser) parseArgs() ([]arg, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}

	var args []arg
	p.skipWhitespace()
	if p.peek() == ')' {
		p.pos++
		return args, nil
	}

	for {
		p.skipWhitespace()
		a, err := p.parseArg()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		p.skipWhitespace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return args, nil
		default:
			return nil, fmt.Errorf("expected ',' or ')' at offset %d", p.pos)
		}
	}
}

func (p *Parser) parseArg() (arg, error) {
	switch {
	case p.peek() == '"' || p.peek() == '\'':
		str, err := p.readQuotedString()
		if err != nil {
			return arg{}, err
		}
		return arg{kind: argString, str: str}, nil
	default:
		raw, err := p.readRawArg()
		if err != nil {
			return arg{}, err
		}
		if num, err := strconv.ParseFloat(raw, 64); err == nil {
			return arg{kind: argNumber, num: num, str: raw}, nil
		}
		return arg{kind: argRaw, str: raw}, nil
	}
}

// readRawArg reads an unquoted argument up to a top-level ',' or ')'.
func (p *Parser) readRawArg() (string, error) {
	start := p.pos
	depth := 0
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch c {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				goto done
			}
			depth--
		case ',':
			if depth == 0 {
				goto done
			}
		}
		p.pos++
	}
	if depth != 0 {
		return "", fmt.Errorf("unbalanced parentheses in argument")
	}
done:
	raw := strings.TrimSpace(p.input[start:p.pos])
	if raw == "" {
		return "", fmt.Errorf("empty argument at offset %d", start)
	}
	return raw, nil
}

func (p *Parser) readQuotedString() (string, error) {
	quote := p.input[p.pos]
	p.pos++
	var sb strings.Builder
	escaped := false
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if escaped {
			sb.WriteByte(c)
			escaped = false
			p.pos++
			continue
		}
		switch c {
		case '\\':
			escaped = true
			p.pos++
		case quote:
			p.pos++
			return sb.String(), nil
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *Parser) readIdentifier() (string, error) {
	p.skipWhitespace()
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return "", fmt.Errorf("expected identifier at offset %d", start)
	}
	return p.input[start:p.pos], nil
}

func (p *Parser) expect(c byte) error {
	p.skipWhitespace()
	if p.pos >= len(p.input) || p.input[p.pos] != c {
		return fmt.Errorf("expected %q at offset %d", string(c), p.pos)
	}
	p.pos++
	return nil
}

func (p *Parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) skipWhitespace() {
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			p.pos++
			continue
		}
		break
	}
}

func (p *Parser) remainderPreview() string {
	rest := p.input[p.pos:]
	if len(rest) > 24 {
		rest = rest[:24] + "…"
	}
	return rest
}

// checkMiniNotation verifies that every delimiter in a mini-notation
// string from the closed set []/<>/{}/() closes in nesting order.
func checkMiniNotation(mini string) error {
	pairs := map[byte]byte{']': '[', '>': '<', '}': '{', ')': '('}
	var stack []byte
	for i := 0; i < len(mini); i++ {
		c := mini[i]
		switch c {
		case '[', '<', '{', '(':
			stack = append(stack, c)
		case ']', '>', '}', ')':
			if len(stack) == 0 {
				return fmt.Errorf("unmatched %q at position %d", string(c), i)
			}
			top := stack[len(stack)-1]
			if top != pairs[c] {
				return fmt.Errorf("mismatched %q at position %d (open was %q)", string(c), i, string(top))
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("unclosed %q", string(stack[len(stack)-1]))
	}
	return nil
}

// tokenizeMini splits a mini-notation string into its tokens.
func tokenizeMini(mini string) []string {
	return strings.Fields(mini)
}

// Serialize renders the AST back to canonical pattern source. The
// sequence of source, tokens, bank, effects and modifiers round-trips
// through Parse.
func (a *AST) Serialize() string {
	chains := make([]string, 0, len(a.Layers))
	for _, layer := range a.Layers {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s(%q)", layer.Source, layer.Mini)
		if layer.Bank != "" {
			fmt.Fprintf(&sb, ".bank(%q)", layer.Bank)
		}
		for _, name := range layer.EffectOrder {
			fmt.Fprintf(&sb, ".%s(%s)", name, strconv.FormatFloat(layer.Effects[name], 'f', -1, 64))
		}
		for _, mod := range layer.Modifiers {
			fmt.Fprintf(&sb, ".%s()", mod)
		}
		chains = append(chains, sb.String())
	}
	if len(chains) == 1 {
		return chains[0]
	}
	return "stack(" + strings.Join(chains, ", ") + ")"
}

package sexy

import (
	"fmt"
	"strings"
	"unicode"
)

// NodeType represents the type of a Node
type NodeType int

const (
	NodeSymbol NodeType = iota
	NodeString
	NodeInteger
	NodeFloat
	NodeEllipsis
	NodeList
	NodeMap
)

// Node represents any Sexy datum. Both the compiler's AST interchange format
// and the WebAssembly text it emits are read back as Nodes.
type Node struct {
	Type NodeType

	// Atoms and text
	Text string // NodeSymbol, NodeString, NodeInteger, NodeFloat

	// Collections
	Items []*Node  // NodeList
	Keys  []string // NodeMap - parallel to Items

	// Metadata for NodeList - stored as parallel slices like maps
	MetaKeys  []string // NodeList - metadata keys
	MetaItems []*Node  // NodeList - metadata values

	// Byte offset of the datum in the parsed input.
	Offset int
}

func (n *Node) String() string {
	switch n.Type {
	case NodeSymbol:
		return n.Text
	case NodeString:
		escaped := strings.ReplaceAll(n.Text, "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		return fmt.Sprintf("\"%s\"", escaped)
	case NodeInteger, NodeFloat:
		return n.Text
	case NodeEllipsis:
		return "..."
	case NodeList:
		var parts []string
		// Add metadata at the beginning if present
		if len(n.MetaKeys) > 0 {
			var metaParts []string
			for i, key := range n.MetaKeys {
				if i < len(n.MetaItems) {
					metaParts = append(metaParts, fmt.Sprintf("%s: %s", key, n.MetaItems[i].String()))
				}
			}
			if len(metaParts) > 0 {
				parts = append(parts, fmt.Sprintf("^{%s}", strings.Join(metaParts, ", ")))
			}
		}
		for _, item := range n.Items {
			parts = append(parts, item.String())
		}
		return fmt.Sprintf("(%s)", strings.Join(parts, " "))
	case NodeMap:
		var parts []string
		for i, key := range n.Keys {
			if i < len(n.Items) {
				parts = append(parts, fmt.Sprintf("%s: %s", key, n.Items[i].String()))
			}
		}
		return fmt.Sprintf("{%s}", strings.Join(parts, ", "))
	default:
		return fmt.Sprintf("UNKNOWN_NODE_TYPE_%d", n.Type)
	}
}

// Helper constructors for common node types
func NewSymbol(name string) *Node {
	return &Node{Type: NodeSymbol, Text: name}
}

func NewString(value string) *Node {
	return &Node{Type: NodeString, Text: value}
}

func NewInteger(text string) *Node {
	return &Node{Type: NodeInteger, Text: text}
}

func NewFloat(text string) *Node {
	return &Node{Type: NodeFloat, Text: text}
}

func NewEllipsis() *Node {
	return &Node{Type: NodeEllipsis}
}

func NewList(items ...*Node) *Node {
	return &Node{Type: NodeList, Items: items}
}

func NewListWithMeta(items []*Node, metaKeys []string, metaItems []*Node) *Node {
	return &Node{Type: NodeList, Items: items, MetaKeys: metaKeys, MetaItems: metaItems}
}

func NewMap(keys []string, items []*Node) *Node {
	return &Node{Type: NodeMap, Keys: keys, Items: items}
}

// IsAtom checks if the node is an atomic value
func (n *Node) IsAtom() bool {
	return n.Type == NodeSymbol || n.Type == NodeString || n.Type == NodeInteger || n.Type == NodeFloat || n.Type == NodeEllipsis
}

// Head returns the leading symbol of a list, or "" if there is none.
func (n *Node) Head() string {
	if n.Type != NodeList || len(n.Items) == 0 || n.Items[0].Type != NodeSymbol {
		return ""
	}
	return n.Items[0].Text
}

// Meta returns the metadata value stored under key, if any.
func (n *Node) Meta(key string) (*Node, bool) {
	for i, k := range n.MetaKeys {
		if k == key && i < len(n.MetaItems) {
			return n.MetaItems[i], true
		}
	}
	return nil, false
}

// Match reports whether value has the shape of pattern. An ellipsis inside a
// pattern list matches any run of items, including an empty one. Metadata is
// ignored.
func Match(pattern, value *Node) bool {
	if pattern == nil || value == nil {
		return pattern == value
	}
	if pattern.Type == NodeEllipsis {
		return true
	}
	if pattern.Type != value.Type {
		return false
	}
	switch pattern.Type {
	case NodeList:
		return matchItems(pattern.Items, value.Items)
	case NodeMap:
		if len(pattern.Keys) != len(value.Keys) {
			return false
		}
		for i, key := range pattern.Keys {
			if value.Keys[i] != key || !Match(pattern.Items[i], value.Items[i]) {
				return false
			}
		}
		return true
	default:
		return pattern.Text == value.Text
	}
}

func matchItems(patterns, values []*Node) bool {
	if len(patterns) == 0 {
		return len(values) == 0
	}
	if patterns[0].Type == NodeEllipsis {
		for skip := 0; skip <= len(values); skip++ {
			if matchItems(patterns[1:], values[skip:]) {
				return true
			}
		}
		return false
	}
	if len(values) == 0 || !Match(patterns[0], values[0]) {
		return false
	}
	return matchItems(patterns[1:], values[1:])
}

// Position converts a byte offset in input into a 1-based line and column.
func Position(input string, offset int) (line, col int) {
	line, col = 1, 1
	for i := 0; i < offset && i < len(input); i++ {
		if input[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

type parser struct {
	lexer        *lexer
	currentToken token
	peekToken    token
}

// Parse parses the entire input and returns the top-level datum
func Parse(input string) (*Node, error) {
	p := &parser{lexer: newLexer(input)}
	p.nextToken()
	p.nextToken()

	result, err := p.ParseDatum()
	if len(p.lexer.errors) > 0 {
		// Lexer errors take priority because they might cause confusing parser errors.
		return nil, fmt.Errorf("%s", p.lexer.errors[0])
	}
	if err != nil {
		return nil, err
	}

	if p.currentToken.Type != tokenEOF {
		return nil, p.errorf("expected EOF but got %s", p.currentToken.Type)
	}

	return result, nil
}

func (p *parser) nextToken() {
	p.currentToken = p.peekToken
	p.peekToken = p.lexer.nextToken()
}

func (p *parser) errorf(format string, args ...any) error {
	line, col := Position(p.lexer.input, p.currentToken.Position)
	return fmt.Errorf("%d:%d: %s", line, col, fmt.Sprintf(format, args...))
}

func (p *parser) ParseDatum() (*Node, error) {
	offset := p.currentToken.Position
	var node *Node
	var err error
	switch p.currentToken.Type {
	case tokenSymbol:
		node = NewSymbol(p.currentToken.Value)
		p.nextToken()
	case tokenString:
		node = NewString(p.currentToken.Value)
		p.nextToken()
	case tokenInteger:
		// We could validate it's a valid integer here, but let callers deal with parsing if needed
		node = NewInteger(p.currentToken.Value)
		p.nextToken()
	case tokenFloat:
		node = NewFloat(p.currentToken.Value)
		p.nextToken()
	case tokenEllipsis:
		node = NewEllipsis()
		p.nextToken()
	case tokenLParen:
		node, err = p.parseList()
	case tokenLBrace:
		node, err = p.parseMap()
	default:
		return nil, p.errorf("unexpected token: %s", p.currentToken.Type)
	}
	if err != nil {
		return nil, err
	}
	node.Offset = offset
	return node, nil
}

func (p *parser) parseList() (*Node, error) {
	var items []*Node
	var metaKeys []string
	var metaItems []*Node
	p.nextToken() // consume '('

	for p.currentToken.Type != tokenRParen && p.currentToken.Type != tokenEOF {
		if p.currentToken.Type == tokenCaret {
			p.nextToken() // consume '^'
			if p.currentToken.Type != tokenLBrace {
				return nil, p.errorf("expected '{' after '^' but got %s", p.currentToken.Type)
			}
			metaNode, err := p.parseMap()
			if err != nil {
				return nil, err
			}

			for i, key := range metaNode.Keys {
				// Check if key already exists - later values win
				found := false
				for j, existingKey := range metaKeys {
					if existingKey == key {
						metaItems[j] = metaNode.Items[i]
						found = true
						break
					}
				}
				if !found {
					metaKeys = append(metaKeys, key)
					metaItems = append(metaItems, metaNode.Items[i])
				}
			}
		} else {
			item, err := p.ParseDatum()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}

	if p.currentToken.Type != tokenRParen {
		return nil, p.errorf("expected ')' but got %s", p.currentToken.Type)
	}
	p.nextToken() // consume ')'

	if len(metaKeys) > 0 {
		return NewListWithMeta(items, metaKeys, metaItems), nil
	}
	return NewList(items...), nil
}

func (p *parser) parseMap() (*Node, error) {
	p.nextToken() // consume '{'

	var keys []string
	var items []*Node

	for p.currentToken.Type != tokenRBrace && p.currentToken.Type != tokenEOF {
		// Parse key (must be symbol)
		if p.currentToken.Type != tokenSymbol {
			return nil, p.errorf("expected symbol for map key but got %s", p.currentToken.Type)
		}

		key := p.currentToken.Value
		keys = append(keys, key)
		p.nextToken()

		if p.currentToken.Type != tokenColon {
			return nil, p.errorf("expected ':' after map key but got %s", p.currentToken.Type)
		}
		p.nextToken()

		value, err := p.ParseDatum()
		if err != nil {
			return nil, err
		}
		items = append(items, value)

		if p.currentToken.Type == tokenComma {
			p.nextToken()
		} else if p.currentToken.Type != tokenRBrace {
			return nil, p.errorf("expected ',' or '}' in map but got %s", p.currentToken.Type)
		}
	}

	if p.currentToken.Type != tokenRBrace {
		return nil, p.errorf("expected '}' but got %s", p.currentToken.Type)
	}
	p.nextToken() // consume '}'

	return NewMap(keys, items), nil
}

type tokenType int

const (
	tokenEOF tokenType = iota
	tokenSymbol
	tokenString
	tokenInteger
	tokenFloat
	tokenEllipsis
	tokenLParen
	tokenRParen
	tokenLBrace
	tokenRBrace
	tokenColon
	tokenComma
	tokenCaret
)

func (t tokenType) String() string {
	switch t {
	case tokenEOF:
		return "EOF"
	case tokenSymbol:
		return "symbol"
	case tokenString:
		return "string"
	case tokenInteger:
		return "integer"
	case tokenFloat:
		return "float"
	case tokenEllipsis:
		return "ellipsis"
	case tokenLParen:
		return "'('"
	case tokenRParen:
		return "')'"
	case tokenLBrace:
		return "'{'"
	case tokenRBrace:
		return "'}'"
	case tokenColon:
		return "':'"
	case tokenComma:
		return "','"
	case tokenCaret:
		return "'^'"
	default:
		return fmt.Sprintf("unknown token %d", int(t))
	}
}

type token struct {
	Type     tokenType
	Value    string
	Position int
}

type lexer struct {
	input    string
	position int
	current  rune
	errors   []string
}

func newLexer(input string) *lexer {
	l := &lexer{input: input}
	l.readChar()
	return l
}

func (l *lexer) readChar() {
	if l.position >= len(l.input) {
		l.current = 0
	} else {
		l.current = rune(l.input[l.position])
	}
	l.position++
}

func (l *lexer) peekChar() rune {
	if l.position >= len(l.input) {
		return 0
	}
	return rune(l.input[l.position])
}

func (l *lexer) skipWhitespace() {
	for unicode.IsSpace(l.current) {
		l.readChar()
	}
}

func (l *lexer) skipComment() {
	for l.current != '\n' && l.current != '\r' && l.current != 0 {
		l.readChar()
	}
}

func (l *lexer) errorf(pos int, format string, args ...any) {
	line, col := Position(l.input, pos)
	l.errors = append(l.errors, fmt.Sprintf("%d:%d: %s", line, col, fmt.Sprintf(format, args...)))
}

func (l *lexer) readSymbol() string {
	start := l.position - 1
	for isSymbolChar(l.current) {
		l.readChar()
	}
	return l.input[start : l.position-1]
}

func (l *lexer) readString() (string, error) {
	var result strings.Builder
	l.readChar() // skip opening quote

	for l.current != '"' && l.current != 0 {
		if l.current == '\\' {
			l.readChar()
			switch l.current {
			case '"':
				result.WriteByte('"')
			case '\\':
				result.WriteByte('\\')
			default:
				return "", fmt.Errorf("invalid escape sequence: \\%c", l.current)
			}
		} else {
			result.WriteRune(l.current)
		}
		l.readChar()
	}

	if l.current != '"' {
		return "", fmt.Errorf("unterminated string")
	}
	l.readChar() // skip closing quote

	return result.String(), nil
}

// readNumber reads an integer or a decimal float with an optional exponent.
func (l *lexer) readNumber() (string, tokenType) {
	start := l.position - 1
	kind := tokenInteger
	if l.current == '+' || l.current == '-' {
		l.readChar()
	}
	for unicode.IsDigit(l.current) {
		l.readChar()
	}
	if l.current == '.' && unicode.IsDigit(l.peekChar()) {
		kind = tokenFloat
		l.readChar()
		for unicode.IsDigit(l.current) {
			l.readChar()
		}
	}
	if l.current == 'e' || l.current == 'E' {
		next := l.peekChar()
		if unicode.IsDigit(next) || next == '+' || next == '-' {
			kind = tokenFloat
			l.readChar()
			if l.current == '+' || l.current == '-' {
				l.readChar()
			}
			for unicode.IsDigit(l.current) {
				l.readChar()
			}
		}
	}
	return l.input[start : l.position-1], kind
}

func (l *lexer) nextToken() token {
	for {
		l.skipWhitespace()

		pos := l.position - 1

		switch l.current {
		case 0:
			return token{Type: tokenEOF, Position: pos}
		case ';':
			l.skipComment()
			continue
		case '(':
			l.readChar()
			return token{Type: tokenLParen, Value: "(", Position: pos}
		case ')':
			l.readChar()
			return token{Type: tokenRParen, Value: ")", Position: pos}
		case '{':
			l.readChar()
			return token{Type: tokenLBrace, Value: "{", Position: pos}
		case '}':
			l.readChar()
			return token{Type: tokenRBrace, Value: "}", Position: pos}
		case ':':
			l.readChar()
			return token{Type: tokenColon, Value: ":", Position: pos}
		case ',':
			l.readChar()
			return token{Type: tokenComma, Value: ",", Position: pos}
		case '^':
			l.readChar()
			return token{Type: tokenCaret, Value: "^", Position: pos}
		case '"':
			str, err := l.readString()
			if err != nil {
				l.errorf(pos, "%s", err.Error())
				return token{Type: tokenEOF, Position: pos}
			}
			return token{Type: tokenString, Value: str, Position: pos}
		case '.':
			if l.peekChar() == '.' {
				l.readChar()
				if l.peekChar() == '.' {
					l.readChar()
					l.readChar()
					return token{Type: tokenEllipsis, Value: "...", Position: pos}
				}
			}
			// Single dot is a syntax error
			l.errorf(pos, "unexpected character '.'")
			return token{Type: tokenEOF, Position: pos}
		default:
			if isSymbolStart(l.current) {
				symbol := l.readSymbol()
				return token{Type: tokenSymbol, Value: symbol, Position: pos}
			} else if unicode.IsDigit(l.current) || l.current == '+' || l.current == '-' {
				if (l.current == '+' || l.current == '-') && !unicode.IsDigit(l.peekChar()) {
					// Single + or - is a symbol
					l.readChar()
					for isSymbolChar(l.current) {
						l.readChar()
					}
					return token{Type: tokenSymbol, Value: l.input[pos : l.position-1], Position: pos}
				}
				number, kind := l.readNumber()
				return token{Type: kind, Value: number, Position: pos}
			} else {
				// Unknown character is a syntax error
				l.errorf(pos, "unexpected character '%c'", l.current)
				return token{Type: tokenEOF, Position: pos}
			}
		}
	}
}

// isSymbolStart accepts WebAssembly text identifiers ($name) and keywords
// (i32.const) as well as plain words.
func isSymbolStart(r rune) bool {
	return unicode.IsLetter(r) || r == '$' || r == '_'
}

func isSymbolChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' || r == '$'
}

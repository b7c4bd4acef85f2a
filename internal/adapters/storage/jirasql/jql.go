package jirasql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidJQL reports a query outside the supported JQL subset.
var ErrInvalidJQL = errors.New("invalid jql")

// Query is one parsed JQL subset query.
type Query struct {
	Clauses []Clause
	Order   []OrderTerm
}

// Clause is one `field op value(s)` condition.
type Clause struct {
	Field  string
	Op     string
	Values []string
}

// OrderTerm is one ORDER BY entry.
type OrderTerm struct {
	Field string
	Desc  bool
}

var fieldAliases = map[string]string{
	"project":  "project",
	"key":      "key",
	"issuekey": "key",
	"id":       "id",
	"assignee": "assignee",
	"reporter": "reporter",
	"status":   "status",
	"priority": "priority",
	"summary":  "summary",
	"created":  "created",
	"updated":  "updated",
}

var orderColumns = map[string]string{
	"id":       "i.id",
	"key":      "p.pkey %s, i.issuenum",
	"project":  "p.pkey",
	"assignee": "i.assignee",
	"reporter": "i.reporter",
	"status":   "s.pname",
	"priority": "pr.pname",
	"summary":  "i.summary",
	"created":  "i.created",
	"updated":  "i.updated",
}

// ParseJQL parses clauses joined by AND with an optional ORDER BY.
func ParseJQL(raw string) (Query, error) {
	tokens, err := lexJQL(raw)
	if err != nil {
		return Query{}, err
	}
	p := &jqlParser{tokens: tokens}
	return p.parse()
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokString
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
}

func lexJQL(raw string) ([]token, error) {
	var out []token
	rs := []rune(raw)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			out = append(out, token{kind: tokLParen, text: "("})
			i++
		case r == ')':
			out = append(out, token{kind: tokRParen, text: ")"})
			i++
		case r == ',':
			out = append(out, token{kind: tokComma, text: ","})
			i++
		case r == '=' || r == '~':
			out = append(out, token{kind: tokOp, text: string(r)})
			i++
		case r == '!':
			if i+1 >= len(rs) || rs[i+1] != '=' {
				return nil, fmt.Errorf("unexpected '!' at offset %d: %w", i, ErrInvalidJQL)
			}
			out = append(out, token{kind: tokOp, text: "!="})
			i += 2
		case r == '"' || r == '\'':
			j := i + 1
			var sb strings.Builder
			for ; j < len(rs) && rs[j] != r; j++ {
				if rs[j] == '\\' && j+1 < len(rs) {
					j++
				}
				sb.WriteRune(rs[j])
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("unterminated string at offset %d: %w", i, ErrInvalidJQL)
			}
			out = append(out, token{kind: tokString, text: sb.String()})
			i = j + 1
		default:
			j := i
			for j < len(rs) && !unicode.IsSpace(rs[j]) && !strings.ContainsRune(`()=,~!"'`, rs[j]) {
				j++
			}
			out = append(out, token{kind: tokWord, text: string(rs[i:j])})
			i = j
		}
	}
	return out, nil
}

type jqlParser struct {
	tokens []token
	pos    int
}

func (p *jqlParser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *jqlParser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *jqlParser) keyword(word string) bool {
	t, ok := p.peek()
	if ok && t.kind == tokWord && strings.EqualFold(t.text, word) {
		p.pos++
		return true
	}
	return false
}

func (p *jqlParser) parse() (Query, error) {
	var q Query
	if _, ok := p.peek(); !ok {
		return q, nil
	}
	if !p.atOrderBy() {
		for {
			c, err := p.clause()
			if err != nil {
				return Query{}, err
			}
			q.Clauses = append(q.Clauses, c)
			if !p.keyword("and") {
				break
			}
		}
	}
	if p.keyword("order") {
		if !p.keyword("by") {
			return Query{}, fmt.Errorf("expected BY after ORDER: %w", ErrInvalidJQL)
		}
		for {
			t, ok := p.next()
			if !ok || t.kind != tokWord {
				return Query{}, fmt.Errorf("expected order field: %w", ErrInvalidJQL)
			}
			field, known := fieldAliases[strings.ToLower(t.text)]
			if !known {
				return Query{}, fmt.Errorf("field %q does not exist: %w", t.text, ErrInvalidJQL)
			}
			term := OrderTerm{Field: field}
			if p.keyword("desc") {
				term.Desc = true
			} else {
				p.keyword("asc")
			}
			q.Order = append(q.Order, term)
			if t, ok := p.peek(); !ok || t.kind != tokComma {
				break
			}
			p.pos++
		}
	}
	if t, ok := p.peek(); ok {
		return Query{}, fmt.Errorf("unexpected %q: %w", t.text, ErrInvalidJQL)
	}
	return q, nil
}

func (p *jqlParser) atOrderBy() bool {
	t, ok := p.peek()
	return ok && t.kind == tokWord && strings.EqualFold(t.text, "order")
}

func (p *jqlParser) clause() (Clause, error) {
	t, ok := p.next()
	if !ok || t.kind != tokWord {
		return Clause{}, fmt.Errorf("expected field name: %w", ErrInvalidJQL)
	}
	field, known := fieldAliases[strings.ToLower(t.text)]
	if !known || field == "created" || field == "updated" {
		return Clause{}, fmt.Errorf("field %q does not exist or cannot be searched: %w", t.text, ErrInvalidJQL)
	}

	var op string
	switch {
	case p.keyword("in"):
		op = "in"
	case p.keyword("not"):
		if !p.keyword("in") {
			return Clause{}, fmt.Errorf("expected IN after NOT: %w", ErrInvalidJQL)
		}
		op = "not in"
	default:
		t, ok := p.next()
		if !ok || t.kind != tokOp {
			return Clause{}, fmt.Errorf("expected operator after %q: %w", field, ErrInvalidJQL)
		}
		op = t.text
	}
	if op == "~" && field != "summary" {
		return Clause{}, fmt.Errorf("operator ~ is not supported for %q: %w", field, ErrInvalidJQL)
	}
	if field == "summary" && op != "~" {
		return Clause{}, fmt.Errorf("field summary only supports ~: %w", ErrInvalidJQL)
	}

	c := Clause{Field: field, Op: op}
	if op == "in" || op == "not in" {
		if t, ok := p.next(); !ok || t.kind != tokLParen {
			return Clause{}, fmt.Errorf("expected ( after %s: %w", strings.ToUpper(op), ErrInvalidJQL)
		}
		for {
			v, err := p.value()
			if err != nil {
				return Clause{}, err
			}
			c.Values = append(c.Values, v)
			t, ok := p.next()
			if !ok {
				return Clause{}, fmt.Errorf("unterminated value list: %w", ErrInvalidJQL)
			}
			if t.kind == tokRParen {
				break
			}
			if t.kind != tokComma {
				return Clause{}, fmt.Errorf("unexpected %q in value list: %w", t.text, ErrInvalidJQL)
			}
		}
		return c, nil
	}
	v, err := p.value()
	if err != nil {
		return Clause{}, err
	}
	c.Values = []string{v}
	return c, nil
}

func (p *jqlParser) value() (string, error) {
	t, ok := p.next()
	if !ok || (t.kind != tokWord && t.kind != tokString) {
		return "", fmt.Errorf("expected value: %w", ErrInvalidJQL)
	}
	return t.text, nil
}

// compile writes the clause as a SQL predicate.
func (c Clause) compile(b *builder) error {
	negate := c.Op == "!=" || c.Op == "not in"
	parts := make([]string, 0, len(c.Values))
	for _, v := range c.Values {
		part, err := c.match(b, v)
		if err != nil {
			return err
		}
		parts = append(parts, part)
	}
	expr := "(" + strings.Join(parts, " OR ") + ")"
	if negate {
		expr = "NOT " + expr
	}
	b.write(expr)
	return nil
}

func (c Clause) match(b *builder, v string) (string, error) {
	switch c.Field {
	case "project":
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			return "i.project = " + b.bind(id), nil
		}
		return "UPPER(p.pkey) = " + b.bind(strings.ToUpper(v)), nil
	case "key":
		projectKey, number, ok := splitIssueKey(v)
		if !ok {
			return "", fmt.Errorf("issue key %q is not valid: %w", v, ErrInvalidJQL)
		}
		return "(UPPER(p.pkey) = " + b.bind(projectKey) + " AND i.issuenum = " + b.bind(number) + ")", nil
	case "id":
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return "", fmt.Errorf("issue id %q is not a number: %w", v, ErrInvalidJQL)
		}
		return "i.id = " + b.bind(id), nil
	case "assignee":
		return "i.assignee = " + b.bind(v), nil
	case "reporter":
		return "i.reporter = " + b.bind(v), nil
	case "status":
		return "LOWER(s.pname) = " + b.bind(strings.ToLower(v)), nil
	case "priority":
		return "LOWER(pr.pname) = " + b.bind(strings.ToLower(v)), nil
	case "summary":
		return "LOWER(i.summary) LIKE " + b.bind("%"+strings.ToLower(v)+"%"), nil
	}
	return "", fmt.Errorf("field %q cannot be searched: %w", c.Field, ErrInvalidJQL)
}

func splitIssueKey(v string) (string, int64, bool) {
	idx := strings.LastIndex(v, "-")
	if idx <= 0 || idx == len(v)-1 {
		return "", 0, false
	}
	number, err := strconv.ParseInt(v[idx+1:], 10, 64)
	if err != nil || number <= 0 {
		return "", 0, false
	}
	return strings.ToUpper(v[:idx]), number, true
}

// orderSQL renders the ORDER BY list with an id tiebreak.
func (q Query) orderSQL() string {
	terms := make([]string, 0, len(q.Order)+1)
	hasID := false
	for _, o := range q.Order {
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		col := orderColumns[o.Field]
		if strings.Contains(col, "%s") {
			col = fmt.Sprintf(col, dir)
		}
		terms = append(terms, col+" "+dir)
		if o.Field == "id" {
			hasID = true
		}
	}
	if !hasID {
		terms = append(terms, "i.id ASC")
	}
	return strings.Join(terms, ", ")
}

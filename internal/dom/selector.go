package dom

import (
	"fmt"
	"strings"
)

// ToXPath translates the CSS subset used by the page contract into XPath.
//
// Supported: type, #id, .class, [attr], [attr=value], descendant and child (>)
// combinators, and comma-separated groups. Selectors starting with "/", "./"
// or "(" are treated as XPath already. When scoped is true the expression is
// relative to the context node.
func ToXPath(css string, scoped bool) (string, error) {
	css = strings.TrimSpace(css)
	if css == "" {
		return "", fmt.Errorf("empty selector")
	}
	if strings.HasPrefix(css, "/") || strings.HasPrefix(css, "./") || strings.HasPrefix(css, "(") {
		return css, nil
	}

	groups, err := splitOutside(css, ',')
	if err != nil {
		return "", err
	}
	paths := make([]string, 0, len(groups))
	for _, g := range groups {
		p, err := groupToXPath(strings.TrimSpace(g), scoped)
		if err != nil {
			return "", fmt.Errorf("selector %q: %w", css, err)
		}
		paths = append(paths, p)
	}
	return strings.Join(paths, " | "), nil
}

func groupToXPath(sel string, scoped bool) (string, error) {
	if sel == "" {
		return "", fmt.Errorf("empty selector group")
	}

	var xpath strings.Builder
	if scoped {
		xpath.WriteString(".")
	}

	axis := "//"
	var compound strings.Builder
	steps := 0
	flush := func() error {
		if compound.Len() == 0 {
			return nil
		}
		step, err := compoundToStep(compound.String())
		if err != nil {
			return err
		}
		xpath.WriteString(axis)
		xpath.WriteString(step)
		compound.Reset()
		steps++
		axis = "//"
		return nil
	}

	depth := 0
	var quote rune
	for _, r := range sel {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			compound.WriteRune(r)
		case r == '"' || r == '\'':
			quote = r
			compound.WriteRune(r)
		case r == '[':
			depth++
			compound.WriteRune(r)
		case r == ']':
			depth--
			compound.WriteRune(r)
		case depth == 0 && (r == ' ' || r == '\t' || r == '\n'):
			if err := flush(); err != nil {
				return "", err
			}
		case depth == 0 && r == '>':
			if err := flush(); err != nil {
				return "", err
			}
			if steps == 0 {
				return "", fmt.Errorf("child combinator without a parent")
			}
			axis = "/"
		default:
			compound.WriteRune(r)
		}
	}
	if quote != 0 || depth != 0 {
		return "", fmt.Errorf("unbalanced brackets or quotes")
	}
	if err := flush(); err != nil {
		return "", err
	}
	if axis == "/" {
		return "", fmt.Errorf("dangling child combinator")
	}
	return xpath.String(), nil
}

func compoundToStep(s string) (string, error) {
	tag := "*"
	var preds []string

	i := 0
	if i < len(s) && !strings.ContainsRune(".#[", rune(s[i])) {
		end := identEnd(s, i)
		tag = strings.ToLower(s[i:end])
		i = end
	}
	for i < len(s) {
		switch s[i] {
		case '#':
			end := identEnd(s, i+1)
			if end == i+1 {
				return "", fmt.Errorf("empty id in %q", s)
			}
			preds = append(preds, "@id="+literal(s[i+1:end]))
			i = end
		case '.':
			end := identEnd(s, i+1)
			if end == i+1 {
				return "", fmt.Errorf("empty class in %q", s)
			}
			preds = append(preds, "contains(concat(' ', normalize-space(@class), ' '), "+literal(" "+s[i+1:end]+" ")+")")
			i = end
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return "", fmt.Errorf("unterminated attribute in %q", s)
			}
			pred, err := attrPredicate(s[i+1 : i+end])
			if err != nil {
				return "", err
			}
			preds = append(preds, pred)
			i += end + 1
		default:
			return "", fmt.Errorf("unexpected %q in %q", s[i], s)
		}
	}

	if len(preds) == 0 {
		return tag, nil
	}
	return tag + "[" + strings.Join(preds, " and ") + "]", nil
}

func attrPredicate(body string) (string, error) {
	name, val, hasVal := strings.Cut(body, "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty attribute name")
	}
	if !hasVal {
		return "@" + name, nil
	}
	val = strings.TrimSpace(val)
	if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
		val = val[1 : len(val)-1]
	}
	return "@" + name + "=" + literal(val), nil
}

func identEnd(s string, start int) int {
	i := start
	for i < len(s) && !strings.ContainsRune(".#[", rune(s[i])) {
		i++
	}
	return i
}

// literal quotes v as an XPath string literal.
func literal(v string) string {
	if !strings.Contains(v, "'") {
		return "'" + v + "'"
	}
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	parts := strings.Split(v, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}

// splitOutside splits s on sep, ignoring separators inside brackets or quotes.
func splitOutside(s string, sep rune) ([]string, error) {
	var out []string
	var cur strings.Builder
	depth := 0
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '[':
			depth++
		case r == ']':
			depth--
		case r == sep && depth == 0:
			out = append(out, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if quote != 0 || depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets or quotes in %q", s)
	}
	return append(out, cur.String()), nil
}

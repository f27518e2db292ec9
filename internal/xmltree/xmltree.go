// Package xmltree builds a small typed DOM on top of encoding/xml that keeps
// CDATA sections apart from ordinary character data.
package xmltree

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// NodeKind tags the concrete type of a Node.
type NodeKind int

const (
	ElementNode NodeKind = iota
	TextNode
	CDataNode
)

// Node is an Element, Text or CData.
type Node interface {
	Kind() NodeKind
}

// Element is an XML element and its children in document order.
type Element struct {
	Name     string
	Attrs    []xml.Attr
	Children []Node
	// Line is the 1-based line of the start tag.
	Line int
}

// Text is character data outside CDATA, entity references already decoded.
type Text struct {
	Value string
}

// CData is the verbatim content of one CDATA section.
type CData struct {
	Value string
}

func (*Element) Kind() NodeKind { return ElementNode }
func (*Text) Kind() NodeKind    { return TextNode }
func (*CData) Kind() NodeKind   { return CDataNode }

// SyntaxError is a parse failure with a position in the input.
type SyntaxError struct {
	Msg    string
	Line   int
	Column int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s (line %d, column %d)", e.Msg, e.Line, e.Column)
}

// Parse decodes text into a tree and returns the root element.
func Parse(text string) (*Element, error) {
	d := xml.NewDecoder(strings.NewReader(text))
	d.Strict = true

	doc := &Element{}
	stack := []*Element{doc}
	// A processing instruction inside an element is almost always source
	// code that escaped its CDATA section; later errors are blamed on it.
	var strayPI string
	for {
		tokStart := int(d.InputOffset())
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			serr := describe(d, text, tokStart, stack, err)
			if strayPI != "" && !strings.Contains(serr.Msg, "processing instruction") {
				serr.Msg += " after processing instruction <?" + strayPI
			}
			return nil, serr
		}

		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			line, _ := lineCol(text, tokStart)
			el := &Element{Name: t.Name.Local, Attrs: append([]xml.Attr(nil), t.Attr...), Line: line}
			top.Children = append(top.Children, el)
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.ProcInst:
			if len(stack) > 1 && strayPI == "" {
				strayPI = t.Target
			}
		case xml.CharData:
			if len(stack) == 1 {
				// Whitespace or stray text outside the root element.
				continue
			}
			if strings.HasPrefix(text[tokStart:], "<![CDATA[") {
				top.Children = append(top.Children, &CData{Value: string(t)})
			} else {
				top.Children = append(top.Children, &Text{Value: string(t)})
			}
		}
	}

	for _, n := range doc.Children {
		if el, ok := n.(*Element); ok {
			return el, nil
		}
	}
	return nil, &SyntaxError{Msg: "no root element found", Line: 1, Column: 1}
}

// describe turns a decoder error into a SyntaxError with a message the
// diagnostic locator can classify.
func describe(d *xml.Decoder, text string, tokStart int, stack []*Element, err error) *SyntaxError {
	line, col := d.InputPos()
	msg := err.Error()
	if se, ok := err.(*xml.SyntaxError); ok {
		msg = se.Msg
		line = se.Line
	}

	if msg == "unexpected EOF" {
		rest := strings.TrimLeft(text[min(tokStart, len(text)):], " \t\r\n")
		switch {
		case strings.HasPrefix(rest, "<?"):
			target := strings.Fields(rest[2:])
			name := ""
			if len(target) > 0 {
				name = target[0]
			}
			msg = fmt.Sprintf("unterminated processing instruction <?%s", name)
			line, col = lineCol(text, tokStart)
		case strings.HasPrefix(rest, "<![CDATA["):
			msg = "unterminated CDATA section"
			line, col = lineCol(text, tokStart)
		case strings.HasPrefix(rest, "<!--"):
			msg = "unterminated comment"
			line, col = lineCol(text, tokStart)
		case len(stack) > 1:
			open := stack[len(stack)-1]
			msg = fmt.Sprintf("Unclosed tag <%s> opened on line %d", open.Name, open.Line)
		}
	}
	return &SyntaxError{Msg: msg, Line: line, Column: col}
}

func lineCol(text string, offset int) (int, int) {
	if offset > len(text) {
		offset = len(text)
	}
	before := text[:offset]
	line := strings.Count(before, "\n") + 1
	col := offset - strings.LastIndex(before, "\n")
	return line, col
}

// Child returns the first direct child element called name.
func (e *Element) Child(name string) *Element {
	for _, n := range e.Children {
		if el, ok := n.(*Element); ok && el.Name == name {
			return el
		}
	}
	return nil
}

// Elements returns the direct child elements called name.
func (e *Element) Elements(name string) []*Element {
	var out []*Element
	for _, n := range e.Children {
		if el, ok := n.(*Element); ok && el.Name == name {
			out = append(out, el)
		}
	}
	return out
}

// Descendants returns every element called name below e, in document order.
func (e *Element) Descendants(name string) []*Element {
	var out []*Element
	var walk func(*Element)
	walk = func(el *Element) {
		for _, n := range el.Children {
			c, ok := n.(*Element)
			if !ok {
				continue
			}
			if c.Name == name {
				out = append(out, c)
			}
			walk(c)
		}
	}
	if e.Name == name {
		out = append(out, e)
	}
	walk(e)
	return out
}

// Text concatenates all character data below e, CDATA included.
func (e *Element) Text() string {
	var b strings.Builder
	var walk func(*Element)
	walk = func(el *Element) {
		for _, n := range el.Children {
			switch v := n.(type) {
			case *Text:
				b.WriteString(v.Value)
			case *CData:
				b.WriteString(v.Value)
			case *Element:
				walk(v)
			}
		}
	}
	walk(e)
	return b.String()
}

// CDataText concatenates the direct CDATA children of e. ok is false when
// there are none.
func (e *Element) CDataText() (string, bool) {
	var b strings.Builder
	found := false
	for _, n := range e.Children {
		if c, ok := n.(*CData); ok {
			b.WriteString(c.Value)
			found = true
		}
	}
	return b.String(), found
}

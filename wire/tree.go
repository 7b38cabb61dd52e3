package wire

import (
	"fmt"

	"github.com/rcowham/gitsvnbridge/errdefs"
)

// Item is a fully materialized tuple element: a number, word, string, or a
// nested list. Callers can work against Item trees rather than raw tokens
// so they can peek/backtrack without re-reading the stream.
type Item struct {
	Kind TokenKind
	Num  int64
	Word string
	Str  []byte
	List []Item
}

func (i Item) AsInt() (int64, error) {
	if i.Kind != TokNumber {
		return 0, errdefs.MalformedFrame("as-int", fmt.Errorf("not a number"))
	}
	return i.Num, nil
}

func (i Item) AsString() (string, error) {
	if i.Kind != TokString {
		return "", errdefs.MalformedFrame("as-string", fmt.Errorf("not a string"))
	}
	return string(i.Str), nil
}

func (i Item) AsWord() (string, error) {
	if i.Kind != TokWord {
		return "", errdefs.MalformedFrame("as-word", fmt.Errorf("not a word"))
	}
	return i.Word, nil
}

func (i Item) AsList() ([]Item, error) {
	if i.Kind != TokListBegin {
		return nil, errdefs.MalformedFrame("as-list", fmt.Errorf("not a list"))
	}
	return i.List, nil
}

// ReadItem reads one fully nested Item (a terminal, or a list and its
// contents up to the matching close).
func ReadItem(r *Reader) (Item, error) {
	tok, err := r.Next()
	if err != nil {
		return Item{}, err
	}
	switch tok.Kind {
	case TokNumber:
		return Item{Kind: TokNumber, Num: tok.Num}, nil
	case TokWord:
		return Item{Kind: TokWord, Word: tok.Word}, nil
	case TokString:
		return Item{Kind: TokString, Str: tok.Str}, nil
	case TokListBegin:
		var items []Item
		for {
			peekTok, err := r.Next()
			if err != nil {
				return Item{}, err
			}
			if peekTok.Kind == TokListEnd {
				return Item{Kind: TokListBegin, List: items}, nil
			}
			item, err := itemFromToken(r, peekTok)
			if err != nil {
				return Item{}, err
			}
			items = append(items, item)
		}
	default:
		return Item{}, errdefs.MalformedFrame("read-item", fmt.Errorf("unexpected top-level token"))
	}
}

// itemFromToken continues materializing an Item given its already-read first token.
func itemFromToken(r *Reader, tok Token) (Item, error) {
	switch tok.Kind {
	case TokNumber:
		return Item{Kind: TokNumber, Num: tok.Num}, nil
	case TokWord:
		return Item{Kind: TokWord, Word: tok.Word}, nil
	case TokString:
		return Item{Kind: TokString, Str: tok.Str}, nil
	case TokListBegin:
		var items []Item
		for {
			next, err := r.Next()
			if err != nil {
				return Item{}, err
			}
			if next.Kind == TokListEnd {
				return Item{Kind: TokListBegin, List: items}, nil
			}
			item, err := itemFromToken(r, next)
			if err != nil {
				return Item{}, err
			}
			items = append(items, item)
		}
	default:
		return Item{}, errdefs.MalformedFrame("item-from-token", fmt.Errorf("unexpected token"))
	}
}

// WriteItem encodes an Item tree, recursing into nested lists.
func WriteItem(w *Writer, item Item) error {
	switch item.Kind {
	case TokNumber:
		return w.Number(item.Num)
	case TokWord:
		return w.Word(item.Word)
	case TokString:
		return w.Bytes(item.Str)
	case TokListBegin:
		if err := w.ListBegin(); err != nil {
			return err
		}
		for _, child := range item.List {
			if err := WriteItem(w, child); err != nil {
				return err
			}
		}
		return w.ListEnd()
	default:
		return errdefs.MalformedFrame("write-item", fmt.Errorf("unknown item kind"))
	}
}

// List is a convenience constructor for building tuples without
// hand-nesting Item literals.
func List(items ...Item) Item { return Item{Kind: TokListBegin, List: items} }
func Num(n int64) Item        { return Item{Kind: TokNumber, Num: n} }
func Word(w string) Item      { return Item{Kind: TokWord, Word: w} }
func Str(s string) Item       { return Item{Kind: TokString, Str: []byte(s)} }
func Bytes(b []byte) Item     { return Item{Kind: TokString, Str: b} }

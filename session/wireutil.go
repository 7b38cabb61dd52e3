package session

import (
	"fmt"

	"github.com/rcowham/gitsvnbridge/errdefs"
	"github.com/rcowham/gitsvnbridge/wire"
)

// value is a parsed wire token tree: the recursive grammar wire.Reader
// exposes one terminal at a time, so command handlers work against this
// assembled form instead of re-implementing the recursion at every call
// site.
type value struct {
	kind wire.TokenKind
	num  int64
	word string
	str  []byte
	list []value
}

func (v value) asString() string { return string(v.str) }

func readValue(r *wire.Reader) (value, error) {
	tok, err := r.Next()
	if err != nil {
		return value{}, err
	}
	return valueFromToken(r, tok)
}

func valueFromToken(r *wire.Reader, tok wire.Token) (value, error) {
	switch tok.Kind {
	case wire.TokListBegin:
		items, err := readList(r)
		if err != nil {
			return value{}, err
		}
		return value{kind: wire.TokListBegin, list: items}, nil
	case wire.TokNumber:
		return value{kind: tok.Kind, num: tok.Num}, nil
	case wire.TokWord:
		return value{kind: tok.Kind, word: tok.Word}, nil
	case wire.TokString:
		return value{kind: tok.Kind, str: tok.Str}, nil
	default:
		return value{}, errdefs.MalformedFrame("unexpected-token", fmt.Errorf("kind %v", tok.Kind))
	}
}

// readList reads items until the list's closing paren, having already
// consumed the opening one.
func readList(r *wire.Reader) ([]value, error) {
	var out []value
	for {
		tok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if tok.Kind == wire.TokListEnd {
			return out, nil
		}
		v, err := valueFromToken(r, tok)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// readCommand reads one top-level "( word arg-list )" command frame.
func readCommand(r *wire.Reader) (word string, args []value, err error) {
	v, err := readValue(r)
	if err != nil {
		return "", nil, err
	}
	if v.kind != wire.TokListBegin || len(v.list) != 2 || v.list[0].kind != wire.TokWord || v.list[1].kind != wire.TokListBegin {
		return "", nil, errdefs.MalformedFrame("command-frame", nil)
	}
	return v.list[0].word, v.list[1].list, nil
}

func readGreetingResponse(r *wire.Reader) (version int64, capabilities []string, url string, err error) {
	v, err := readValue(r)
	if err != nil {
		return 0, nil, "", err
	}
	if v.kind != wire.TokListBegin || len(v.list) < 3 {
		return 0, nil, "", errdefs.MalformedFrame("greeting-response", nil)
	}
	version = v.list[0].num
	for _, c := range v.list[1].list {
		capabilities = append(capabilities, c.word)
	}
	url = v.list[2].asString()
	return version, capabilities, url, nil
}

func writeWordList(w *wire.Writer, words []string) error {
	if err := w.ListBegin(); err != nil {
		return err
	}
	for _, word := range words {
		if err := w.Word(word); err != nil {
			return err
		}
	}
	return w.ListEnd()
}

func writeStringList(w *wire.Writer, strs []string) error {
	if err := w.ListBegin(); err != nil {
		return err
	}
	for _, s := range strs {
		if err := w.String(s); err != nil {
			return err
		}
	}
	return w.ListEnd()
}

// writeSuccess frames a successful command reply: ( success ( ...body ) ).
func writeSuccess(w *wire.Writer, body func() error) error {
	if err := w.ListBegin(); err != nil {
		return err
	}
	if err := w.Word("success"); err != nil {
		return err
	}
	if err := w.ListBegin(); err != nil {
		return err
	}
	if body != nil {
		if err := body(); err != nil {
			return err
		}
	}
	if err := w.ListEnd(); err != nil {
		return err
	}
	return w.ListEnd()
}

// writeFailure frames a non-fatal command error:
// ( failure ( ( code:num msg:str file:str line:num ) ... ) ).
func writeFailure(w *wire.Writer, err *errdefs.Error) error {
	if werr := w.ListBegin(); werr != nil {
		return werr
	}
	if werr := w.Word("failure"); werr != nil {
		return werr
	}
	if werr := w.ListBegin(); werr != nil {
		return werr
	}
	if werr := w.ListBegin(); werr != nil {
		return werr
	}
	w.Number(int64(err.Code))
	w.String(err.Error())
	w.String("")
	w.Number(0)
	if werr := w.ListEnd(); werr != nil {
		return werr
	}
	if werr := w.ListEnd(); werr != nil {
		return werr
	}
	if werr := w.ListEnd(); werr != nil {
		return werr
	}
	return w.Flush()
}

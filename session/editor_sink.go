package session

import (
	"github.com/rcowham/gitsvnbridge/wire"
)

// wireEditorSink implements report.EditorSink by framing each editor call
// as its own "( word ( args ) )" command on the connection's writer, the
// same shape readCommand parses on the way in for the commit direction.
// It does not flush per call; the caller flushes once after Drive returns
// so an update/switch/status/diff response streams as one write burst.
type wireEditorSink struct {
	w *wire.Writer
}

func newWireEditorSink(w *wire.Writer) *wireEditorSink {
	return &wireEditorSink{w: w}
}

func (s *wireEditorSink) frame(word string, body func() error) error {
	if err := s.w.ListBegin(); err != nil {
		return err
	}
	if err := s.w.Word(word); err != nil {
		return err
	}
	if err := s.w.ListBegin(); err != nil {
		return err
	}
	if body != nil {
		if err := body(); err != nil {
			return err
		}
	}
	if err := s.w.ListEnd(); err != nil {
		return err
	}
	return s.w.ListEnd()
}

func (s *wireEditorSink) OpenRoot(rev int64) error {
	return s.frame("open-root", func() error { s.w.Number(rev); return nil })
}

func (s *wireEditorSink) DeleteEntry(path string) error {
	return s.frame("delete-entry", func() error { return s.w.String(path) })
}

func (s *wireEditorSink) AddDir(path string) error {
	return s.frame("add-dir", func() error { return s.w.String(path) })
}

func (s *wireEditorSink) OpenDir(path string) error {
	return s.frame("open-dir", func() error { return s.w.String(path) })
}

func (s *wireEditorSink) CloseDir() error {
	return s.frame("close-dir", nil)
}

func (s *wireEditorSink) AddFile(path string) error {
	return s.frame("add-file", func() error { return s.w.String(path) })
}

func (s *wireEditorSink) OpenFile(path string) error {
	return s.frame("open-file", func() error { return s.w.String(path) })
}

func (s *wireEditorSink) ChangeProp(key, value string) error {
	return s.frame("change-prop", func() error {
		if err := s.w.String(key); err != nil {
			return err
		}
		return s.w.String(value)
	})
}

func (s *wireEditorSink) ApplyTextDelta(baseChecksum string) error {
	return s.frame("apply-textdelta", func() error { return s.w.String(baseChecksum) })
}

func (s *wireEditorSink) TextDeltaChunk(window []byte) error {
	return s.frame("textdelta-chunk", func() error { return s.w.Bytes(window) })
}

func (s *wireEditorSink) TextDeltaEnd() error {
	return s.frame("textdelta-end", nil)
}

func (s *wireEditorSink) CloseFile(textChecksum string) error {
	return s.frame("close-file", func() error { return s.w.String(textChecksum) })
}

func (s *wireEditorSink) CloseEdit() error {
	return s.frame("close-edit", nil)
}

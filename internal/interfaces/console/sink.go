package console

import (
	"fmt"
	"io"
	"os"

	"xspread/internal/application/port"
)

// 光标归位并清屏，每帧整屏重画
const clearScreen = "\033[H\033[2J"

type Sink struct {
	w io.Writer
}

func NewSink() port.Sink { return &Sink{w: os.Stdout} }

// NewWriterSink writes frames to w instead of stdout.
func NewWriterSink(w io.Writer) *Sink { return &Sink{w: w} }

func (s *Sink) WriteFrame(frame string) error {
	_, err := fmt.Fprint(s.w, clearScreen+frame)
	return err
}

func (s *Sink) NewLine() error {
	_, err := fmt.Fprint(s.w, "\n")
	return err
}

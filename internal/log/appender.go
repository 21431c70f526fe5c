package log

import (
	"fmt"
	"io"

	"go.uber.org/multierr"
	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/nfcsniff/internal/config"
)

// MultiWriter fans a log line out to every appender. A failing appender does
// not stop the others.
type MultiWriter struct {
	writers []io.Writer
	closers []io.Closer
}

func NewMultiWriter(writers ...io.Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		if _, e := w.Write(p); e != nil {
			err = multierr.Append(err, e)
		}
	}
	return len(p), err
}

// AddFile appends a size rotated file. Rotation limits of zero keep the
// lumberjack defaults.
func (m *MultiWriter) AddFile(cfg config.FileOutputConfig) error {
	if cfg.Path == "" {
		return fmt.Errorf("file output requires 'path' field")
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.Rotation.MaxSizeMB,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAgeDays,
		Compress:   cfg.Rotation.Compress,
	}
	m.writers = append(m.writers, lj)
	m.closers = append(m.closers, lj)
	return nil
}

// Close releases the file appenders.
func (m *MultiWriter) Close() error {
	var err error
	for _, c := range m.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

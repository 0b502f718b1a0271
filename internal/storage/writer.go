// Package storage persists raw normalized ticks. It is a pure consumer of
// the raw channel: losing it to back-pressure never affects the live path.
package storage

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Gogi213/arb1-sub000/pkg/channel"
	"github.com/Gogi213/arb1-sub000/pkg/types"
	"github.com/sirupsen/logrus"
)

// Config controls the tick writer.
type Config struct {
	Dir            string
	RotateInterval time.Duration
	Compress       bool
	FlushInterval  time.Duration
	FlushBatch     int
}

func (c *Config) applyDefaults() {
	if c.RotateInterval <= 0 {
		c.RotateInterval = time.Hour
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.FlushBatch <= 0 {
		c.FlushBatch = 1000
	}
}

// Writer buffers ticks per exchange and writes them as JSONL files under
// dir/<exchange>/, rotating by interval and optionally gzipping rotated
// files.
type Writer struct {
	cfg Config
	log *logrus.Entry

	mu      sync.Mutex
	writers map[string]*fileWriter
}

type fileWriter struct {
	file         *os.File
	buf          *bufio.Writer
	path         string
	openedAt     time.Time
	linesPending int
}

// NewWriter creates the writer and its base directory.
func NewWriter(cfg Config, log *logrus.Entry) (*Writer, error) {
	cfg.applyDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &Writer{
		cfg:     cfg,
		log:     log.WithField("component", "storage"),
		writers: make(map[string]*fileWriter),
	}, nil
}

// Run consumes the raw channel until ctx is cancelled, then drains at most
// one more item, flushes and closes all files.
func (w *Writer) Run(ctx context.Context, ch *channel.Channel[types.Tick]) {
	go func() {
		flushTicker := time.NewTicker(w.cfg.FlushInterval)
		defer flushTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-flushTicker.C:
				w.FlushAll()
			}
		}
	}()

	for {
		tick, ok := ch.Receive(ctx)
		if !ok {
			if tick, ok = ch.TryReceive(); ok {
				w.WriteTick(tick)
			}
			w.CloseAll()
			return
		}
		w.WriteTick(tick)
	}
}

// WriteTick appends one tick to its exchange's current file.
func (w *Writer) WriteTick(tick types.Tick) {
	data, err := json.Marshal(tick)
	if err != nil {
		w.log.WithError(err).Error("failed to marshal tick")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	fw, err := w.writerFor(tick.Exchange)
	if err != nil {
		w.log.WithError(err).WithField("exchange", tick.Exchange).Error("failed to open tick file")
		return
	}

	fw.buf.Write(data)
	fw.buf.WriteByte('\n')
	fw.linesPending++

	if fw.linesPending >= w.cfg.FlushBatch {
		fw.buf.Flush()
		fw.linesPending = 0
	}
}

func (w *Writer) writerFor(exchange string) (*fileWriter, error) {
	fw, ok := w.writers[exchange]
	if ok && time.Since(fw.openedAt) >= w.cfg.RotateInterval {
		w.rotate(exchange, fw)
		ok = false
	}
	if ok {
		return fw, nil
	}

	dir := filepath.Join(w.cfg.Dir, exchange)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	// Nanosecond suffix keeps names unique across rapid rotations.
	path := filepath.Join(dir, fmt.Sprintf("ticks_%s.jsonl", time.Now().UTC().Format("20060102_150405.000000000")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	fw = &fileWriter{
		file:     file,
		buf:      bufio.NewWriterSize(file, 64*1024),
		path:     path,
		openedAt: time.Now(),
	}
	w.writers[exchange] = fw
	return fw, nil
}

func (w *Writer) rotate(exchange string, fw *fileWriter) {
	fw.buf.Flush()
	fw.file.Close()
	delete(w.writers, exchange)

	if w.cfg.Compress {
		go w.compress(fw.path)
	}
}

func (w *Writer) compress(path string) {
	src, err := os.Open(path)
	if err != nil {
		w.log.WithError(err).Error("failed to open rotated file for compression")
		return
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		w.log.WithError(err).Error("failed to create compressed file")
		return
	}
	defer dst.Close()

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		w.log.WithError(err).Error("failed to compress rotated file")
		return
	}
	if err := gz.Close(); err != nil {
		w.log.WithError(err).Error("failed to finalize compressed file")
		return
	}
	os.Remove(path)
}

// FlushAll flushes every open buffer.
func (w *Writer) FlushAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, fw := range w.writers {
		fw.buf.Flush()
		fw.linesPending = 0
	}
}

// CloseAll flushes and closes every open file.
func (w *Writer) CloseAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for exchange, fw := range w.writers {
		fw.buf.Flush()
		fw.file.Close()
		delete(w.writers, exchange)
	}
}

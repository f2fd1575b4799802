package feature

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Collector accumulates feature records into a temporary sibling file and
// atomically renames it over the destination on Finish. A partially written
// stream is never visible at the destination path.
type Collector struct {
	dest  string
	tmp   string
	file  *os.File
	buf   *bufio.Writer
	count int
}

// NewCollector opens a collector writing toward dest.
func NewCollector(dest string) (*Collector, error) {
	tmp := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+"."+uuid.NewString()+".tmp")
	file, err := os.Create(tmp)
	if err != nil {
		return nil, eris.Wrapf(err, "feature: create temp stream %s", tmp)
	}
	return &Collector{
		dest: dest,
		tmp:  tmp,
		file: file,
		buf:  bufio.NewWriter(file),
	}, nil
}

// Collect appends one feature record.
func (c *Collector) Collect(f *Feature) error {
	data, err := Marshal(f)
	if err != nil {
		return err
	}
	if _, err := c.buf.Write(data); err != nil {
		return eris.Wrapf(err, "feature: write record to %s", c.tmp)
	}
	if err := c.buf.WriteByte('\n'); err != nil {
		return eris.Wrapf(err, "feature: write record to %s", c.tmp)
	}
	c.count++
	return nil
}

// Count returns the number of records collected so far.
func (c *Collector) Count() int { return c.count }

// Finish flushes, closes, and atomically replaces the destination file.
func (c *Collector) Finish() error {
	if err := c.buf.Flush(); err != nil {
		c.Abort()
		return eris.Wrapf(err, "feature: flush %s", c.tmp)
	}
	if err := c.file.Close(); err != nil {
		c.Abort()
		return eris.Wrapf(err, "feature: close %s", c.tmp)
	}
	if err := os.Rename(c.tmp, c.dest); err != nil {
		c.Abort()
		return eris.Wrapf(err, "feature: replace %s", c.dest)
	}
	zap.L().Debug("feature: stream replaced",
		zap.String("path", c.dest),
		zap.Int("records", c.count),
	)
	return nil
}

// Abort discards the temporary file. Safe after a failed Finish.
func (c *Collector) Abort() {
	_ = c.file.Close()
	_ = os.Remove(c.tmp)
}

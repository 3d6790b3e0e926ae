// Package export encodes study results as the downloadable CSV file.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joeblew999/plat-traffic/internal/feature"
)

const (
	Filename    = "traffic_studies.csv"
	ContentType = "text/csv;charset=utf-8"
)

// Header is the fixed column order of the export.
var Header = []string{"id", "year", "direction", "lat", "lon"}

// Row renders one study. Attributes are written as sent and empty when
// missing; coordinates are the resolved values, empty when unresolved.
func Row(f feature.Feature) []string {
	c := feature.Resolve(f)
	return []string{
		f.ID.Or(""),
		f.Year.Or(""),
		f.Direction.Or(""),
		feature.RawCoordinate(c.Lat),
		feature.RawCoordinate(c.Lon),
	}
}

// Encode writes the header and one row per result, in order.
func Encode(w io.Writer, results []feature.Feature) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, f := range results {
		if err := cw.Write(Row(f)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Blob is an encoded export ready to be saved or served.
type Blob struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

// NewBlob encodes results. It reports false when there is nothing to export.
func NewBlob(results []feature.Feature) (Blob, bool) {
	if len(results) == 0 {
		return Blob{}, false
	}
	var buf bytes.Buffer
	// Writes into a bytes.Buffer do not fail.
	_ = Encode(&buf, results)
	return Blob{
		Filename:    Filename,
		ContentType: ContentType,
		Data:        buf.Bytes(),
		Rows:        len(results),
	}, true
}

// Saver is where a finished export goes.
type Saver interface {
	Save(ctx context.Context, b Blob) error
}

// FileSaver writes exports into Dir.
type FileSaver struct {
	Dir string
}

func (s FileSaver) Save(_ context.Context, b Blob) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(s.Dir, b.Filename)
	if err := os.WriteFile(path, b.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Outcome is what became of one export request.
type Outcome string

const (
	OutcomeEmpty  Outcome = "empty"
	OutcomeSaved  Outcome = "saved"
	OutcomeFailed Outcome = "failed"
)

// Attempted reports whether a file was produced and handed to a saver.
func (o Outcome) Attempted() bool { return o != OutcomeEmpty }

// Export encodes results and hands them to saver. Nothing happens for an
// empty result set. A failing saver is logged and reported as OutcomeFailed;
// the caller decides whether that matters.
func Export(ctx context.Context, results []feature.Feature, saver Saver, logger *slog.Logger) (Blob, Outcome) {
	b, ok := NewBlob(results)
	if !ok {
		return Blob{}, OutcomeEmpty
	}
	if err := saver.Save(ctx, b); err != nil {
		logger.WarnContext(ctx, "export save failed", "file", b.Filename, "err", err)
		return b, OutcomeFailed
	}
	logger.InfoContext(ctx, "export saved", "file", b.Filename, "rows", b.Rows)
	return b, OutcomeSaved
}

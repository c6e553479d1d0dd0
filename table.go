// Package genescore opens the delimited inputs of gene scoring runs. Inputs
// may be local files or gs:// objects, optionally compressed, with any common
// delimiter; the scoring itself lives in the vegas package.
package genescore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/csimplestring/go-csv/detector"
)

// delimiterSample is how much decompressed content is inspected to choose a
// delimiter.
const delimiterSample = 64 << 10

// Table is an open delimited file. The embedded csv.Reader is configured with
// the detected delimiter.
type Table struct {
	*csv.Reader
	Delimiter   rune
	Compression DataType
	Size        int64

	body   io.Closer
	source io.Closer
}

// OpenTable opens path, which may be local or gs://, decompresses it if
// needed, and detects its delimiter.
func OpenTable(ctx context.Context, path string, client *storage.Client) (*Table, error) {
	src, size, err := OpenSeeker(ctx, path, client)
	if err != nil {
		return nil, err
	}

	body, dt, err := MaybeDecompress(src)
	if err != nil {
		src.Close()
		return nil, pfx.Err(err)
	}

	// The decompressed stream cannot seek, so the delimiter is detected from
	// buffered bytes that the csv reader will then consume.
	br := bufio.NewReaderSize(body, delimiterSample)
	sample, err := br.Peek(delimiterSample)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		body.Close()
		src.Close()
		return nil, pfx.Err(err)
	}

	delim := DetermineDelimiter(bytes.NewReader(sample))

	rdr := csv.NewReader(br)
	rdr.Comma = delim
	rdr.LazyQuotes = true

	return &Table{
		Reader:      rdr,
		Delimiter:   delim,
		Compression: dt,
		Size:        size,
		body:        body,
		source:      src,
	}, nil
}

func (t *Table) Close() error {
	err := t.body.Close()
	if err2 := t.source.Close(); err == nil {
		err = err2
	}

	return err
}

// DetermineDelimiter returns the single most likely rune that would delimit the
// values in the reader, assuming a CSV-like file.
func DetermineDelimiter(r io.Reader) rune {
	d := detector.New()
	delimiters := d.DetectDelimiter(r, '"')

	if len(delimiters) > 0 && len(delimiters[0]) > 0 {
		return rune(delimiters[0][0])
	}

	return ','
}

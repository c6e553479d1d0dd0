package genescore

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"

	"github.com/krolaw/zipstream"
	"github.com/xi2/xz"
)

type DataType byte

const (
	DataTypeInvalid DataType = iota
	DataTypeNoCompression
	DataTypeGzip
	DataTypeZip
	DataTypeXZ
	DataTypeZ
	DataTypeBZip2
)

var dataTypeNames = [...]string{
	DataTypeInvalid:       "invalid",
	DataTypeNoCompression: "uncompressed",
	DataTypeGzip:          "gzip",
	DataTypeZip:           "zip",
	DataTypeXZ:            "xz",
	DataTypeZ:             "compress",
	DataTypeBZip2:         "bzip2",
}

func (dt DataType) String() string {
	if int(dt) >= len(dataTypeNames) {
		return fmt.Sprintf("DataType(%d)", dt)
	}
	return dataTypeNames[dt]
}

// ErrUnsupportedCompression is returned for recognized formats that cannot be
// decompressed.
var ErrUnsupportedCompression = errors.New("unsupported compression format")

// Byte code signatures from https://stackoverflow.com/a/19127748/199475
var byteCodeSigs = []struct {
	dt  DataType
	sig []byte
}{
	{DataTypeGzip, []byte{0x1f, 0x8b, 0x08}},
	{DataTypeZip, []byte{0x50, 0x4b, 0x03, 0x04}},
	{DataTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}},
	{DataTypeZ, []byte{0x1f, 0x9d}},
	{DataTypeBZip2, []byte{0x42, 0x5a, 0x68}},
}

// DetectDataType detects the compression of a stream from its leading bytes.
// It consumes up to 6 bytes of r. Streams shorter than every signature are
// reported as uncompressed.
func DetectDataType(r io.Reader) (DataType, error) {
	buff := make([]byte, 6)
	n, err := io.ReadFull(r, buff)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return DataTypeInvalid, err
	}

	return detectSignature(buff[:n]), nil
}

func detectSignature(head []byte) DataType {
	for _, v := range byteCodeSigs {
		if bytes.HasPrefix(head, v.sig) {
			return v.dt
		}
	}

	return DataTypeNoCompression
}

// MaybeDecompress detects the compression of rs, rewinds it, and returns a
// reader over the decompressed content. Closing the returned reader does not
// close rs.
func MaybeDecompress(rs io.ReadSeeker) (io.ReadCloser, DataType, error) {
	dt, err := DetectDataType(rs)
	if err != nil {
		return nil, dt, err
	}

	// Rewind before any decompressor reads its header
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, dt, err
	}

	switch dt {
	case DataTypeGzip:
		r, err := gzip.NewReader(rs)
		return r, dt, err
	case DataTypeZip:
		// Only the first file of an archive is read
		zr := zipstream.NewReader(rs)
		if _, err := zr.Next(); err != nil {
			return nil, dt, err
		}
		return io.NopCloser(zr), dt, nil
	case DataTypeBZip2:
		return io.NopCloser(bzip2.NewReader(rs)), dt, nil
	case DataTypeXZ:
		reader, err := xz.NewReader(rs, 0)
		if err != nil {
			return nil, dt, err
		}
		return io.NopCloser(reader), dt, nil
	case DataTypeZ:
		return nil, dt, fmt.Errorf("%w: %s", ErrUnsupportedCompression, dt)
	}

	return io.NopCloser(rs), dt, nil
}

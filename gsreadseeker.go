package genescore

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
)

type ReadSeekCloser interface {
	io.Reader
	io.Seeker
	io.Closer
}

// GSReadSeekCloser decorates a Google Storage object handle with io.Reader,
// io.Seeker and io.Closer. Seeking closes the current range reader; the next
// Read opens a new one at the requested offset.
type GSReadSeekCloser struct {
	*storage.ObjectHandle
	Context context.Context
	Size    int64

	r   *storage.Reader
	pos int64
}

func (s *GSReadSeekCloser) Read(buf []byte) (int, error) {
	if s.r == nil {
		if s.pos >= s.Size {
			return 0, io.EOF
		}

		var err error
		s.r, err = s.NewRangeReader(s.Context, s.pos, -1)
		if err != nil {
			return 0, err
		}
	}

	n, err := s.r.Read(buf)
	s.pos += int64(n)

	return n, err
}

func (s *GSReadSeekCloser) Seek(offset int64, whence int) (int64, error) {
	var newPos int64

	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = s.Size + offset
	default:
		return s.pos, fmt.Errorf("io.Seeker 'whence' value %d is not implemented", whence)
	}

	if newPos < 0 {
		return s.pos, fmt.Errorf("Seek: negative position %d", newPos)
	}

	if newPos != s.pos {
		if err := s.Close(); err != nil {
			return s.pos, err
		}
		s.pos = newPos
	}

	return s.pos, nil
}

// Close releases the current range reader, if any. The object handle itself
// needs no cleanup.
func (s *GSReadSeekCloser) Close() error {
	if s.r == nil {
		return nil
	}

	err := s.r.Close()
	s.r = nil

	return err
}

// SplitGSPath splits gs://bucket/path/to/object into its bucket and object.
func SplitGSPath(path string) (bucket, object string, err error) {
	pathParts := strings.SplitN(strings.TrimPrefix(path, "gs://"), "/", 2)
	if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] == "" {
		return "", "", fmt.Errorf("Tried to split your google storage path into bucket and object, but got %d parts: %v", len(pathParts), pathParts)
	}

	return pathParts[0], pathParts[1], nil
}

// OpenSeeker opens a gs:// object through client, or else a local file, and
// returns it with its size in bytes.
func OpenSeeker(ctx context.Context, path string, client *storage.Client) (ReadSeekCloser, int64, error) {
	if strings.HasPrefix(path, "gs://") {
		if client == nil {
			return nil, 0, pfx.Err(fmt.Errorf("%s: no google storage client was configured", path))
		}

		bucketName, objectName, err := SplitGSPath(path)
		if err != nil {
			return nil, 0, pfx.Err(err)
		}

		handle := client.Bucket(bucketName).Object(objectName)

		// Make a hard call to get the filesize
		attrs, err := handle.Attrs(ctx)
		if err != nil {
			return nil, 0, pfx.Err(fmt.Errorf("%s: %s", path, err))
		}

		return &GSReadSeekCloser{
			ObjectHandle: handle,
			Context:      ctx,
			Size:         attrs.Size,
		}, attrs.Size, nil
	}

	path, err := ExpandHome(path)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, pfx.Err(err)
	}
	fstat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, pfx.Err(err)
	}

	return f, fstat.Size(), nil
}

package storage

import (
	"fmt"
	"io"
)

type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
}

// TranscriptKey is where the latest transcript for a class week is archived.
func TranscriptKey(classID int64, week int) string {
	return fmt.Sprintf("transcripts/class-%d/week-%02d.vtt", classID, week)
}

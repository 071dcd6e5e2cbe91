// Package content pins rendered certificate documents to a content-addressed
// storage network.
package content

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/storacha/go-ucanto/core/ipld/hash/sha256"
)

var log = logging.Logger("content")

var (
	ErrUploadFailed = errors.New("content upload failed")
	ErrUnpinFailed  = errors.New("content unpin failed")
	ErrNotFound     = errors.New("content not found")
)

// Store uploads documents and returns their content address.
type Store interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
	Unpin(ctx context.Context, address string) error
	// URL is the public download link for an address.
	URL(address string) string
}

// ComputeAddress returns the CIDv1 (raw codec, sha2-256) of data.
func ComputeAddress(data []byte) (cid.Cid, error) {
	digest, err := sha256.Hasher.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, digest.Bytes()), nil
}

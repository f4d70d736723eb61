// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gbhanda/volttron/lib/channel"
	"github.com/gbhanda/volttron/lib/checksum"
)

// ReceiveConfig tunes one receiving session. Zero values take the
// package defaults.
type ReceiveConfig struct {
	// ChunkSize is the byte bound sent with each fetch request.
	ChunkSize int

	// Timeout bounds each individual wait for a response.
	Timeout time.Duration
}

func (c *ReceiveConfig) applyDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultReceiveTimeout
	}
}

// Receive drives one pull session over ch, writing verified artifact
// bytes to dst. It returns the final digest and byte count on success.
//
// The channel is closed on every exit path — success, timeout, or
// checksum mismatch — releasing the session's resources. A timeout on
// any wait surfaces channel.ErrTimeout and a digest disagreement
// surfaces ErrChecksumMismatch; neither is retried here, retry policy
// belongs to the caller. An empty artifact completes on the first
// fetch with zero chunk exchanges.
func Receive(ctx context.Context, ch channel.Channel, dst io.Writer, config ReceiveConfig) (digest []byte, size int64, err error) {
	config.applyDefaults()
	defer ch.Close()

	fetchRequest, err := encodeFetch(config.ChunkSize)
	if err != nil {
		return nil, 0, fmt.Errorf("encoding fetch request: %w", err)
	}
	checksumRequest, err := encodeChecksum()
	if err != nil {
		return nil, 0, fmt.Errorf("encoding checksum request: %w", err)
	}

	accumulator := checksum.New()
	for {
		if err := ch.Send(ctx, fetchRequest); err != nil {
			return nil, size, fmt.Errorf("requesting chunk: %w", err)
		}
		payload, err := ch.Receive(ctx, config.Timeout)
		if err != nil {
			return nil, size, fmt.Errorf("waiting for chunk: %w", err)
		}
		reply, err := decodeChunkReply(payload)
		if err != nil {
			return nil, size, err
		}
		if reply.EOF {
			return accumulator.Digest(), size, nil
		}

		accumulator.Update(reply.Data)
		if _, err := dst.Write(reply.Data); err != nil {
			return nil, size, fmt.Errorf("writing chunk: %w", err)
		}
		size += int64(len(reply.Data))

		if err := ch.Send(ctx, checksumRequest); err != nil {
			return nil, size, fmt.Errorf("requesting checksum: %w", err)
		}
		remoteDigest, err := ch.Receive(ctx, config.Timeout)
		if err != nil {
			return nil, size, fmt.Errorf("waiting for checksum: %w", err)
		}
		if !bytes.Equal(remoteDigest, accumulator.Digest()) {
			return nil, size, fmt.Errorf("after %d bytes: %w", size, ErrChecksumMismatch)
		}
	}
}

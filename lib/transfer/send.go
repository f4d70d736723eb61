// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gbhanda/volttron/lib/channel"
	"github.com/gbhanda/volttron/lib/checksum"
)

// SendConfig tunes one serving session. Zero values take the package
// defaults.
type SendConfig struct {
	// Timeout bounds each individual wait for a request.
	Timeout time.Duration
}

// Send serves one artifact from src over ch, answering the receiver's
// fetch and checksum requests until the read cursor reaches end of
// input and the end-of-stream reply has been sent.
//
// The digest served for a checksum request covers exactly the bytes
// already transmitted, not the whole input. The chunk size is the
// receiver's to choose; it arrives with every fetch request. Send does
// not close the channel — the receiver owns session teardown.
func Send(ctx context.Context, ch channel.Channel, src io.Reader, config SendConfig) error {
	if config.Timeout <= 0 {
		config.Timeout = DefaultReceiveTimeout
	}

	accumulator := checksum.New()
	for {
		payload, err := ch.Receive(ctx, config.Timeout)
		if err != nil {
			return fmt.Errorf("waiting for request: %w", err)
		}
		action, chunkSize, err := decodeRequest(payload)
		if err != nil {
			return err
		}

		switch action {
		case actionFetch:
			chunk, err := readChunk(src, chunkSize)
			if err != nil {
				return fmt.Errorf("reading source: %w", err)
			}
			if len(chunk) == 0 {
				reply, err := encodeChunkReply(chunkReply{EOF: true})
				if err != nil {
					return err
				}
				if err := ch.Send(ctx, reply); err != nil {
					return fmt.Errorf("sending end of stream: %w", err)
				}
				return nil
			}
			accumulator.Update(chunk)
			reply, err := encodeChunkReply(chunkReply{Data: chunk})
			if err != nil {
				return err
			}
			if err := ch.Send(ctx, reply); err != nil {
				return fmt.Errorf("sending chunk: %w", err)
			}
		case actionChecksum:
			if err := ch.Send(ctx, accumulator.Digest()); err != nil {
				return fmt.Errorf("sending checksum: %w", err)
			}
		}
	}
}

// readChunk reads up to max bytes from r, tolerating short reads. A
// zero-length result with no error means end of input.
func readChunk(r io.Reader, max int) ([]byte, error) {
	buffer := make([]byte, max)
	filled := 0
	for filled < max {
		n, err := r.Read(buffer[filled:])
		filled += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return buffer[:filled], nil
}

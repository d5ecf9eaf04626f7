// Copyright 2018 Andrew Fort
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package rfc6242

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"
)

// tokenEOM is the RFC4742/6242 "old" end-of-message marker, used until a
// peer's capabilities indicate chunked framing support.
var tokenEOM = []byte("]]>]]>")

// decoderEndOfMessage is the default Framer. It delimits messages with the
// legacy "]]>]]>" marker.
func decoderEndOfMessage(d *Decoder, data []byte, atEOF bool) (advance int, token []byte, err error) {
	if idx := bytes.Index(data, tokenEOM); idx >= 0 {
		d.anySeen = true
		d.promotePendingFramer()
		return idx + len(tokenEOM), data[:idx], nil
	}
	if atEOF {
		if len(data) == 0 {
			return 0, nil, nil
		}
		return 0, nil, errors.New("rfc6242: truncated message, end-of-message marker not found")
	}
	return 0, nil, nil
}

// decoderChunked is the Framer used once chunked framing has been enabled
// (RFC6242 section 4.2). A message is one or more chunks
//
//	"\n#" <len> "\n" <len bytes of data>
//
// terminated by the end-of-chunks marker "\n##\n". Chunk data may be split
// across multiple calls; chunkDataLeft on the Decoder carries that state
// between invocations of this function.
func decoderChunked(d *Decoder, data []byte, atEOF bool) (advance int, token []byte, err error) {
	var out []byte
	pos := 0

	for {
		if d.chunkDataLeft > 0 {
			take := d.chunkDataLeft
			if avail := uint64(len(data) - pos); avail < take {
				take = avail
			}
			out = append(out, data[pos:pos+int(take)]...)
			pos += int(take)
			d.chunkDataLeft -= take

			if d.chunkDataLeft > 0 {
				if atEOF {
					return 0, nil, errors.New("rfc6242: truncated chunk data")
				}
				return 0, nil, nil
			}
			continue
		}

		rest := data[pos:]
		if len(rest) < 2 {
			if atEOF && len(rest) > 0 {
				return 0, nil, errors.New("rfc6242: truncated chunk header")
			}
			return 0, nil, nil
		}
		if rest[0] != '\n' || rest[1] != '#' {
			return 0, nil, errors.New("rfc6242: malformed chunk, expected '\\n#'")
		}

		if len(rest) >= 3 && rest[2] == '#' {
			// End-of-chunks marker: "\n##\n".
			if len(rest) < 4 {
				if atEOF {
					return 0, nil, errors.New("rfc6242: truncated end-of-chunks marker")
				}
				return 0, nil, nil
			}
			if rest[3] != '\n' {
				return 0, nil, errors.New("rfc6242: malformed end-of-chunks marker")
			}
			pos += 4
			d.anySeen = true
			d.promotePendingFramer()
			return pos, out, nil
		}

		nlOffset := bytes.IndexByte(rest[2:], '\n')
		if nlOffset < 0 {
			if len(rest)-2 > rfc6242maximumAllowedChunkSizeLength {
				return 0, nil, errors.New("rfc6242: chunk-size field too long")
			}
			if atEOF {
				return 0, nil, errors.New("rfc6242: truncated chunk-size field")
			}
			return 0, nil, nil
		}

		lenField := rest[2 : 2+nlOffset]
		if len(lenField) == 0 || len(lenField) > rfc6242maximumAllowedChunkSizeLength {
			return 0, nil, errors.New("rfc6242: invalid chunk-size field")
		}
		for _, b := range lenField {
			if b < '0' || b > '9' {
				return 0, nil, errors.New("rfc6242: non-digit in chunk-size field")
			}
		}

		size, convErr := strconv.ParseUint(string(lenField), 10, 32)
		if convErr != nil || size == 0 {
			return 0, nil, errors.New("rfc6242: invalid chunk-size field")
		}

		pos += 2 + nlOffset + 1
		d.chunkDataLeft = size
	}
}

func (d *Decoder) promotePendingFramer() {
	if d.pendingFramer != nil {
		d.framer = d.pendingFramer
		d.pendingFramer = nil
	}
}

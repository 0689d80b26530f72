package client

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var pngSignature = []byte{137, 80, 78, 71, 13, 10, 26, 10}

// GetPngMetadata returns the text chunks of a PNG, keyed by keyword. ComfyUI
// stores the workflow under "workflow" and the prompt under "prompt".
// tEXt and iTXt (compressed or not) chunks are read; reading stops at IEND.
func GetPngMetadata(r io.Reader) (map[string]string, error) {
	header := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if !bytes.Equal(header, pngSignature) {
		return nil, errors.New("not a valid PNG file")
	}

	txtChunks := make(map[string]string)
	for {
		var length uint32
		err := binary.Read(r, binary.BigEndian, &length)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		chunkType := make([]byte, 4)
		if _, err := io.ReadFull(r, chunkType); err != nil {
			return nil, err
		}

		switch string(chunkType) {
		case "tEXt", "iTXt":
			chunkData := make([]byte, length)
			if _, err := io.ReadFull(r, chunkData); err != nil {
				return nil, err
			}
			keyword, text, err := parseTextChunk(string(chunkType), chunkData)
			if err != nil {
				return nil, err
			}
			txtChunks[keyword] = text
		default:
			if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
				return nil, err
			}
		}

		// Skip the CRC
		if _, err := io.CopyN(io.Discard, r, 4); err != nil {
			return nil, err
		}
		if string(chunkType) == "IEND" {
			break
		}
	}
	return txtChunks, nil
}

func parseTextChunk(kind string, data []byte) (string, string, error) {
	keywordEnd := bytes.IndexByte(data, 0)
	if keywordEnd == -1 {
		return "", "", fmt.Errorf("malformed %s chunk", kind)
	}
	keyword := string(data[:keywordEnd])
	rest := data[keywordEnd+1:]
	if kind == "tEXt" {
		return keyword, string(rest), nil
	}

	// iTXt: compression flag, compression method, language tag\0, translated keyword\0, text
	if len(rest) < 2 {
		return "", "", errors.New("malformed iTXt chunk")
	}
	compressed := rest[0] == 1
	rest = rest[2:]
	for i := 0; i < 2; i++ {
		end := bytes.IndexByte(rest, 0)
		if end == -1 {
			return "", "", errors.New("malformed iTXt chunk")
		}
		rest = rest[end+1:]
	}
	if !compressed {
		return keyword, string(rest), nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(rest))
	if err != nil {
		return "", "", fmt.Errorf("iTXt %s: %w", keyword, err)
	}
	defer zr.Close()
	text, err := io.ReadAll(zr)
	if err != nil {
		return "", "", fmt.Errorf("iTXt %s: %w", keyword, err)
	}
	return keyword, string(text), nil
}

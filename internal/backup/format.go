package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvandessel/evonet/internal/constants"
)

// Format versions. V1 is a plain JSON Archive; V2 is a JSON header line
// followed by the gzip-compressed Archive.
const (
	FormatV1 = 1
	FormatV2 = constants.ArchiveFormatVersion
)

// MaxDecompressedSize caps the decompressed payload of an archive.
const MaxDecompressedSize = constants.MaxArchiveSize

// ErrChecksumMismatch is returned when a payload does not match its header.
var ErrChecksumMismatch = errors.New("archive checksum mismatch")

// Header is the plain-text first line of a V2 archive.
type Header struct {
	Version         int               `json:"version"`
	CreatedAt       time.Time         `json:"created_at"`
	Checksum        string            `json:"checksum"`
	NetworkCount    int               `json:"network_count"`
	NodeCount       int               `json:"node_count"`
	ConnectionCount int               `json:"connection_count"`
	Compressed      bool              `json:"compressed"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// DetectFormat reads the first line of a file to tell V1 from V2.
func DetectFormat(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("reading first line: %w", err)
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return 0, fmt.Errorf("file is empty")
	}

	var header Header
	if err := json.Unmarshal(line, &header); err == nil && header.Version == FormatV2 {
		return FormatV2, nil
	}
	if line[0] == '{' {
		return FormatV1, nil
	}
	return 0, fmt.Errorf("unrecognized archive format")
}

// WriteArchive writes a as a V2 archive, creating parent directories.
func WriteArchive(path string, a *Archive) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	nodes, conns := a.counts()
	header := Header{
		Version:         FormatV2,
		CreatedAt:       a.CreatedAt,
		Checksum:        checksum(compressed.Bytes()),
		NetworkCount:    len(a.Records),
		NodeCount:       nodes,
		ConnectionCount: conns,
		Compressed:      true,
		Metadata:        a.Metadata,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	// Write through a temp file and rename into place.
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	w := bufio.NewWriter(f)
	w.Write(headerBytes)
	w.WriteByte('\n')
	w.Write(compressed.Bytes())
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing archive: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming archive: %w", err)
	}
	return nil
}

// splitArchive returns the header and the compressed payload of a V2 file.
func splitArchive(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	headerLine, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header line: %w", err)
	}
	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(headerLine), &header); err != nil {
		return nil, nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatV2 {
		return nil, nil, fmt.Errorf("expected V2 format, got version %d", header.Version)
	}

	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	return &header, payload, nil
}

// ReadArchive reads a V1 or V2 archive. V2 payloads are checksum-verified
// and decompressed up to MaxDecompressedSize.
func ReadArchive(path string) (*Archive, error) {
	version, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch version {
	case FormatV1:
		data, err = readLimited(path)
		if err != nil {
			return nil, err
		}
	default:
		header, payload, err := splitArchive(path)
		if err != nil {
			return nil, err
		}
		if actual := checksum(payload); actual != header.Checksum {
			return nil, fmt.Errorf("expected %s, got %s: %w", header.Checksum, actual, ErrChecksumMismatch)
		}
		gzr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzr.Close()
		if data, err = readAllLimited(gzr); err != nil {
			return nil, err
		}
	}

	var a Archive
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing archive data: %w", err)
	}
	if a.Version == 0 {
		a.Version = version
	}
	return &a, nil
}

func readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return readAllLimited(f)
}

func readAllLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	if int64(len(data)) > MaxDecompressedSize {
		return nil, fmt.Errorf("payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}
	return data, nil
}

// ReadHeader reads only the header line of a V2 archive.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}
	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatV2 {
		return nil, fmt.Errorf("expected V2 format, got version %d", header.Version)
	}
	return &header, nil
}

// VerifyChecksum checks a V2 archive's payload against its header without
// decompressing it.
func VerifyChecksum(path string) error {
	header, payload, err := splitArchive(path)
	if err != nil {
		return err
	}
	if actual := checksum(payload); actual != header.Checksum {
		return fmt.Errorf("expected %s, got %s: %w", header.Checksum, actual, ErrChecksumMismatch)
	}
	return nil
}

// IsArchiveFile reports whether name carries the archive extension.
func IsArchiveFile(name string) bool {
	return strings.HasSuffix(name, Ext)
}

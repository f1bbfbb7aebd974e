package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docrelay/docrelay-go/internal/core/domain"
	"github.com/docrelay/docrelay-go/internal/telemetry/logger"
	"github.com/docrelay/docrelay-go/pkg/crypto/adaptive"
)

// Magic bytes identify DocRelay snapshot files.
var magicBytes = []byte("DRELSNAP")

const (
	fileExtension = ".snap"
	checksumSize  = 32
	headerVersion = 1
)

// Format errors, wrapped into domain errors at the store boundary.
var (
	ErrInvalidMagic     = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch = errors.New("snapshot: checksum mismatch")
)

type header struct {
	Version    int    `json:"version"`
	CreatedAt  int64  `json:"created_at"`
	DocumentID string `json:"document_id"`
	HistoryLen uint64 `json:"history_len"`
	Encrypted  bool   `json:"encrypted"`
	Salt       string `json:"salt,omitempty"`
}

// Config configures the file store.
type Config struct {
	Dir string

	// Passphrase enables at-rest encryption of the document bytes when
	// non-empty. The derived key's salt is recorded in each file header.
	Passphrase []byte

	// Algorithm selects the cipher: "auto" (default), "aes-gcm" or
	// "chacha20-poly1305".
	Algorithm string
}

// Store is the file-backed snapshot store. One .snap file per document.
type Store struct {
	dir       string
	algorithm string
	log       logger.Logger

	mu         sync.Mutex
	passphrase []byte
	cipher     adaptive.Cipher
	salt       []byte
	// ciphers caches keys derived for salts seen in existing files, so
	// reloading a directory does not re-run Argon2 per file.
	ciphers map[string]adaptive.Cipher
}

// New creates the store, creating the directory if needed. When a
// passphrase is configured the write-path cipher is derived up front so a
// bad passphrase fails at startup, not on the first Store call.
func New(cfg Config, log logger.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}

	s := &Store{
		dir:       cfg.Dir,
		algorithm: cfg.Algorithm,
		log:       log,
		ciphers:   map[string]adaptive.Cipher{},
	}
	if len(cfg.Passphrase) > 0 {
		c, salt, err := deriveCipher(cfg.Passphrase, nil, cfg.Algorithm)
		if err != nil {
			return nil, err
		}
		s.passphrase = append([]byte(nil), cfg.Passphrase...)
		s.cipher = c
		s.salt = salt
		s.ciphers[hex.EncodeToString(salt)] = c
	}
	return s, nil
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+fileExtension)
}

// Store writes the document as <id>.snap via a temp file and rename.
func (s *Store) Store(ctx context.Context, id string, doc *domain.Document) error {
	if err := domain.ValidateDocumentID(id); err != nil {
		return err
	}
	data := doc.Save()

	s.mu.Lock()
	cipher := s.cipher
	salt := s.salt
	s.mu.Unlock()

	hdr := header{
		Version:    headerVersion,
		CreatedAt:  time.Now().UnixMilli(),
		DocumentID: id,
		HistoryLen: doc.HistoryLen(),
		Encrypted:  cipher != nil,
	}
	if cipher != nil {
		hdr.Salt = hex.EncodeToString(salt)
		enc, err := cipher.Encrypt(data, []byte(id))
		if err != nil {
			return domain.ErrStorageError.WithDetails("encrypt snapshot").WithCause(err)
		}
		data = enc
	}

	if err := s.writeFile(s.path(id), hdr, data); err != nil {
		return domain.ErrStorageError.WithDetails("write snapshot: " + id).WithCause(err)
	}
	return nil
}

func (s *Store) writeFile(finalPath string, hdr header, data []byte) error {
	tempPath := finalPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	hash := sha256.New()
	w := io.MultiWriter(file, hash)

	if _, err := w.Write(magicBytes); err != nil {
		file.Close()
		return err
	}

	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		file.Close()
		return fmt.Errorf("snapshot: marshal header: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(hdrJSON)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		file.Close()
		return err
	}
	if _, err := w.Write(hdrJSON); err != nil {
		file.Close()
		return err
	}

	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		file.Close()
		return err
	}
	if _, err := w.Write(data); err != nil {
		file.Close()
		return err
	}

	// Checksum trailer covers everything written so far.
	if _, err := file.Write(hash.Sum(nil)); err != nil {
		file.Close()
		return fmt.Errorf("snapshot: write checksum: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}

// Load reads and decodes the snapshot for id.
func (s *Store) Load(ctx context.Context, id string) (*domain.Document, error) {
	if err := domain.ValidateDocumentID(id); err != nil {
		return nil, err
	}
	doc, _, err := s.loadFile(s.path(id), id)
	return doc, err
}

func (s *Store) loadFile(path, id string) (*domain.Document, *header, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, domain.ErrSnapshotNotFound.WithDetails(id)
		}
		return nil, nil, domain.ErrStorageError.WithDetails("open snapshot: " + id).WithCause(err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, domain.ErrStorageError.WithCause(err)
	}
	if stat.Size() < int64(len(magicBytes))+checksumSize {
		return nil, nil, domain.ErrDocumentCorrupt.WithDetails(id).WithCause(ErrChecksumMismatch)
	}

	// Verify the trailer before trusting any byte of the body.
	bodyLen := stat.Size() - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, bodyLen, checksumSize), expected); err != nil {
		return nil, nil, domain.ErrStorageError.WithCause(err)
	}
	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, bodyLen), bodyLen); err != nil {
		return nil, nil, domain.ErrStorageError.WithCause(err)
	}
	if !bytes.Equal(h.Sum(nil), expected) {
		return nil, nil, domain.ErrDocumentCorrupt.WithDetails(id).WithCause(ErrChecksumMismatch)
	}

	br := bufio.NewReader(io.NewSectionReader(f, 0, bodyLen))
	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, nil, domain.ErrStorageError.WithCause(err)
	}
	if !bytes.Equal(magic, magicBytes) {
		return nil, nil, domain.ErrDocumentCorrupt.WithDetails(id).WithCause(ErrInvalidMagic)
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return nil, nil, domain.ErrStorageError.WithCause(err)
	}
	hdrJSON := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(br, hdrJSON); err != nil {
		return nil, nil, domain.ErrStorageError.WithCause(err)
	}
	var hdr header
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, nil, domain.ErrDocumentCorrupt.WithDetails(id).WithCause(err)
	}

	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return nil, nil, domain.ErrStorageError.WithCause(err)
	}
	data := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(br, data); err != nil {
		return nil, nil, domain.ErrStorageError.WithCause(err)
	}

	if hdr.Encrypted {
		cipher, err := s.cipherForSalt(hdr.Salt)
		if err != nil {
			return nil, nil, err
		}
		plain, err := cipher.Decrypt(data, []byte(id))
		if err != nil {
			return nil, nil, domain.ErrDocumentCorrupt.WithDetails(id).WithCause(ErrDecryptionFailed)
		}
		data = plain
	}

	doc, err := domain.LoadDocument(data)
	if err != nil {
		return nil, nil, err
	}
	return doc, &hdr, nil
}

// cipherForSalt returns a cipher keyed for the salt recorded in a file
// header, deriving and caching it on first sight.
func (s *Store) cipherForSalt(saltHex string) (adaptive.Cipher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.passphrase == nil {
		return nil, domain.ErrDocumentCorrupt.WithDetails("snapshot is encrypted but no passphrase is configured")
	}
	if c, ok := s.ciphers[saltHex]; ok {
		return c, nil
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, domain.ErrDocumentCorrupt.WithDetails("bad salt in snapshot header").WithCause(err)
	}
	c, _, err := deriveCipher(s.passphrase, salt, s.algorithm)
	if err != nil {
		return nil, domain.ErrStorageError.WithCause(err)
	}
	s.ciphers[saltHex] = c
	return c, nil
}

// LoadAll decodes every readable snapshot in the directory. Corrupt files
// are logged and skipped so one bad snapshot cannot block recovery.
func (s *Store) LoadAll(ctx context.Context) (map[string]*domain.Document, error) {
	ids, err := s.IDs(ctx)
	if err != nil {
		return nil, err
	}
	docs := make(map[string]*domain.Document, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, _, err := s.loadFile(s.path(id), id)
		if err != nil {
			s.log.Warn("skipping unreadable snapshot", "document_id", id, "error", err)
			continue
		}
		docs[id] = doc
	}
	return docs, nil
}

// IDs lists document ids with a snapshot file, sorted.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.ErrStorageError.WithDetails("read snapshot dir").WithCause(err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExtension) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), fileExtension))
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes the snapshot file for id. Idempotent.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := domain.ValidateDocumentID(id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return domain.ErrStorageError.WithDetails("delete snapshot: " + id).WithCause(err)
	}
	return nil
}

// Close wipes key material. The directory needs no teardown.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	zeroKey(s.passphrase)
	s.passphrase = nil
	s.cipher = nil
	s.ciphers = nil
	return nil
}

// Package cborfile stores a single key/value mapping, encoded as one CBOR
// map, at the start of a fixed-size byte store such as an EEPROM.
//
// On-device layout:
//
//	byte 0 == 0xFF  -> empty (erased device)
//	otherwise       -> one CBOR map starting at offset 0, no length prefix
//
// Only the sentinel byte decides emptiness; bytes after it are ignored. Since
// the encoded length is not stored, [File.ReadFile] reads in chunks and
// trial-decodes the accumulated prefix until a complete item parses.
//
// A [File] caches the decoded mapping. The cache is dropped before every
// write and only repopulated after the write succeeds, so a failed or
// interrupted write never leaves the cache claiming data the device may not
// hold.
package cborfile

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// ErasedByte marks an empty device when stored at offset 0.
const ErasedByte = 0xFF

// DefaultChunkSize is the read granularity used while scanning for the end of
// the encoded mapping.
const DefaultChunkSize = 1024

// ErrSerialize reports a mapping that cannot be encoded as CBOR.
// The device is not written when it is returned.
var ErrSerialize = errors.New("cannot serialize mapping")

// Storage is the raw byte store a [File] lives on. *eeprom.Device satisfies
// it.
type Storage interface {
	// Size returns the capacity in bytes.
	Size() int

	// Read returns exactly length bytes at offset.
	Read(offset int64, length int) ([]byte, error)

	// Write stores p at offset and returns the count written.
	Write(offset int64, p []byte) (int, error)
}

// Options configures a [File].
type Options struct {
	// ChunkSize is the scan read size. Values < 1 use [DefaultChunkSize].
	ChunkSize int

	// Logger receives scan and cache debug output. Nil discards.
	Logger logrus.FieldLogger
}

// Option mutates Options.
type Option func(*Options)

// WithChunkSize sets the scan read size.
func WithChunkSize(n int) Option {
	return func(opts *Options) {
		opts.ChunkSize = n
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(opts *Options) {
		opts.Logger = log
	}
}

// File is a cached CBOR mapping on top of a [Storage].
//
// File assumes it is the only writer of its storage. Raw writes made directly
// to the storage are only observed after [File.Invalidate].
//
// File is not safe for concurrent use.
type File struct {
	store     Storage
	chunkSize int
	log       logrus.FieldLogger

	// cache is nil when unknown. When non-nil it equals the decoded device
	// contents.
	cache map[string]any
}

// New returns a File over store with an unknown cache.
func New(store Storage, opts ...Option) *File {
	options := Options{ChunkSize: DefaultChunkSize}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		opt(&options)
	}

	if options.ChunkSize < 1 {
		options.ChunkSize = DefaultChunkSize
	}

	if options.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		options.Logger = l
	}

	return &File{
		store:     store,
		chunkSize: options.ChunkSize,
		log:       options.Logger,
	}
}

// ReadFile returns the stored mapping.
//
// A populated cache is returned without device access. Otherwise a single
// byte is read at offset 0; [ErasedByte] yields an empty mapping. Any other
// value starts a chunked scan that stops at the first prefix that decodes.
// If nothing decodes before the end of the device, or the item is not a
// mapping, the result is empty. A mapping with a non-text key returns
// [ErrKeyType].
//
// Read errors propagate and leave the cache unknown.
func (f *File) ReadFile() (map[string]any, error) {
	err := f.load()
	if err != nil {
		return nil, err
	}

	return cloneMap(f.cache), nil
}

func (f *File) load() error {
	if f.cache != nil {
		return nil
	}

	head, err := f.store.Read(0, 1)
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	if len(head) == 1 && head[0] == ErasedByte {
		f.log.Debug("storage erased")

		f.cache = map[string]any{}

		return nil
	}

	m, err := f.scan()
	if err != nil {
		return err
	}

	f.cache = m

	return nil
}

func (f *File) scan() (map[string]any, error) {
	size := f.store.Size()
	buf := make([]byte, 0, min(size, f.chunkSize))

	for offset := 0; offset < size; offset += f.chunkSize {
		n := min(f.chunkSize, size-offset)

		chunk, err := f.store.Read(int64(offset), n)
		if err != nil {
			return nil, fmt.Errorf("reading chunk at 0x%x: %w", offset, err)
		}

		buf = append(buf, chunk...)

		m, isMap, err := DecodeFirst(buf)
		if errors.Is(err, ErrKeyType) {
			return nil, fmt.Errorf("decoding mapping: %w", err)
		}

		if err != nil {
			// Usually the item continues past what was read so far.
			continue
		}

		f.log.WithField("bytes", len(buf)).Debug("decoded mapping")

		if !isMap || m == nil {
			f.log.Debug("stored item is not a mapping, treating as empty")

			return map[string]any{}, nil
		}

		return m, nil
	}

	f.log.WithField("bytes", len(buf)).Debug("no complete mapping found")

	return map[string]any{}, nil
}

// WriteFile replaces the stored mapping with m.
//
// The cache is dropped first. An encoding failure, or a nested mapping with a
// non-text key, returns [ErrSerialize] without writing. After a successful
// write the cache holds the decoded form of the bytes written; after a failed
// write it stays unknown.
func (f *File) WriteFile(m map[string]any) error {
	f.cache = nil

	data, err := Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerialize, err)
	}

	decoded, _, err := DecodeFirst(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerialize, err)
	}

	_, err = f.store.Write(0, data)
	if err != nil {
		return fmt.Errorf("writing mapping: %w", err)
	}

	f.cache = decoded

	f.log.WithField("bytes", len(data)).Debug("mapping written")

	return nil
}

// EraseFile marks the storage empty by writing [ErasedByte] at offset 0.
// Bytes after it are left untouched.
func (f *File) EraseFile() error {
	f.cache = nil

	_, err := f.store.Write(0, []byte{ErasedByte})
	if err != nil {
		return fmt.Errorf("erasing: %w", err)
	}

	f.cache = map[string]any{}

	return nil
}

// Get returns the value stored under key. It never writes.
func (f *File) Get(key string) (any, bool, error) {
	err := f.load()
	if err != nil {
		return nil, false, err
	}

	v, ok := f.cache[key]
	if !ok {
		return nil, false, nil
	}

	return cloneValue(v), true, nil
}

// Put stores value under key, rewriting the whole mapping.
func (f *File) Put(key string, value any) error {
	err := f.load()
	if err != nil {
		return err
	}

	next := cloneMap(f.cache)
	next[key] = value

	return f.WriteFile(next)
}

// Delete removes key, rewriting the whole mapping. It reports false, and does
// not write, when key is absent.
func (f *File) Delete(key string) (bool, error) {
	err := f.load()
	if err != nil {
		return false, err
	}

	if _, ok := f.cache[key]; !ok {
		return false, nil
	}

	next := cloneMap(f.cache)
	delete(next, key)

	return true, f.WriteFile(next)
}

// Invalidate drops the cache so the next access reads the device.
func (f *File) Invalidate() {
	f.cache = nil
}

// Cached returns a copy of the cached mapping and whether one is held.
func (f *File) Cached() (map[string]any, bool) {
	if f.cache == nil {
		return nil, false
	}

	return cloneMap(f.cache), true
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))

	for k, v := range m {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}

		return out
	case []byte:
		return append([]byte(nil), t...)
	default:
		return v
	}
}

package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig sets how often each fault fires, from 0.0 (never) to 1.0
// (always). The zero value injects nothing.
type ChaosConfig struct {
	// OpenFailRate fails FS.OpenFile with EACCES, EIO, EBUSY, EMFILE or
	// ENFILE.
	OpenFailRate float64

	// ReadFailRate fails FS.ReadFile and File.Read with EIO and no data.
	ReadFailRate float64

	// PartialReadRate makes File.Read return 0 < n < len(buf) with a nil
	// error. The handle offset advances by n only.
	PartialReadRate float64

	// WriteFailRate fails File.Write with EIO, ENOSPC or EROFS before any
	// byte reaches the file.
	WriteFailRate float64

	// PartialWriteRate makes File.Write store a prefix and then fail.
	PartialWriteRate float64

	// ShortWriteRate is the share of partial writes that fail with
	// io.ErrShortWrite instead of an errno.
	ShortWriteRate float64

	// SeekFailRate fails File.Seek with EIO, leaving the offset unchanged.
	SeekFailRate float64

	// CloseFailRate makes File.Close report EIO. The descriptor is closed
	// regardless.
	CloseFailRate float64

	// ControlWriteFailRate fails FS.WriteFile with EACCES, EINVAL, EBUSY or
	// EIO without reaching the wrapped FS, the way a sysfs control point
	// rejects a command.
	ControlWriteFailRate float64

	// StatFailRate fails FS.Stat and FS.Exists with EACCES or EIO.
	StatFailRate float64

	// MkdirAllFailRate fails FS.MkdirAll with EACCES, EIO, ENOSPC or EROFS.
	MkdirAllFailRate float64

	// TraceCapacity is how many recent operations [Chaos.TraceEvents] keeps.
	// Zero disables tracing.
	TraceCapacity int
}

// ChaosMode switches injection on and off.
type ChaosMode uint8

const (
	// ChaosModeActive injects faults at the configured rates. Default.
	ChaosModeActive ChaosMode = iota

	// ChaosModeNoOp forwards every call unchanged.
	ChaosModeNoOp
)

// ChaosStats counts injected faults per kind.
type ChaosStats struct {
	OpenFails         int64
	ReadFails         int64
	WriteFails        int64
	PartialReads      int64
	PartialWrites     int64
	ControlWriteFails int64
	StatFails         int64
	MkdirAllFails     int64
	SeekFails         int64
	CloseFails        int64
}

// fault identifies one kind of injected failure.
type fault int

const (
	faultOpen fault = iota
	faultRead
	faultPartialRead
	faultWrite
	faultPartialWrite
	faultSeek
	faultClose
	faultControlWrite
	faultStat
	faultMkdirAll
	numFaults
)

// faultErrnos lists the errnos a fault may report. Faults that return no
// errno (short reads) or a fixed one are left empty.
var faultErrnos = [numFaults][]syscall.Errno{
	faultOpen:         {syscall.EACCES, syscall.EIO, syscall.EBUSY, syscall.EMFILE, syscall.ENFILE},
	faultWrite:        {syscall.EIO, syscall.ENOSPC, syscall.EROFS},
	faultPartialWrite: {syscall.EIO, syscall.ENOSPC, syscall.EROFS},
	faultControlWrite: {syscall.EACCES, syscall.EINVAL, syscall.EBUSY, syscall.EIO},
	faultStat:         {syscall.EACCES, syscall.EIO},
	faultMkdirAll:     {syscall.EACCES, syscall.EIO, syscall.ENOSPC, syscall.EROFS},
}

func (c ChaosConfig) rate(f fault) float64 {
	switch f {
	case faultOpen:
		return c.OpenFailRate
	case faultRead:
		return c.ReadFailRate
	case faultPartialRead:
		return c.PartialReadRate
	case faultWrite:
		return c.WriteFailRate
	case faultPartialWrite:
		return c.PartialWriteRate
	case faultSeek:
		return c.SeekFailRate
	case faultClose:
		return c.CloseFailRate
	case faultControlWrite:
		return c.ControlWriteFailRate
	case faultStat:
		return c.StatFailRate
	case faultMkdirAll:
		return c.MkdirAllFailRate
	default:
		return 0
	}
}

// chaosError marks an injected failure. It unwraps to the [*fs.PathError]
// (or io.ErrShortWrite) it carries, so errors.Is and os.IsPermission behave
// as for real OS errors.
type chaosError struct {
	Err error
}

func (e *chaosError) Error() string {
	return "chaos: " + e.Err.Error()
}

func (e *chaosError) Unwrap() error {
	return e.Err
}

// IsChaosErr reports whether err, or anything it wraps, was injected by
// [Chaos].
func IsChaosErr(err error) bool {
	var injected *chaosError

	return errors.As(err, &injected)
}

// pathError builds an injected [*fs.PathError].
func pathError(op, path string, errno syscall.Errno) error {
	return &chaosError{Err: &fs.PathError{Op: op, Path: path, Err: errno}}
}

// Chaos wraps an [FS] and fails calls at random.
//
// Every call decides independently from a seeded RNG, so a seed replays the
// same fault sequence for the same call sequence. Chaos never injects
// ENOENT; missing paths are reported by the wrapped FS.
//
// Returned shapes:
//   - File.Read faults return n == 0; short reads return 0 < n < len(buf)
//     with a nil error and never skip bytes.
//   - File.Write faults may return n > 0 alongside the error.
//   - File.Seek faults return 0.
//   - File.Close faults still close the descriptor.
type Chaos struct {
	fs     FS
	config ChaosConfig
	mode   atomic.Uint32
	trace  *chaosTrace

	rngMu sync.Mutex
	rng   *rand.Rand

	counts [numFaults]atomic.Int64
}

// NewChaos wraps underlying. Panics if underlying is nil.
func NewChaos(underlying FS, seed int64, config ChaosConfig) *Chaos {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	return &Chaos{
		fs:     underlying,
		config: config,
		trace:  newChaosTrace(config.TraceCapacity),
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
	}
}

// SetMode switches between [ChaosModeActive] and [ChaosModeNoOp].
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// Trace formats the recorded operations one per line.
func (c *Chaos) Trace() string {
	return c.trace.String()
}

// TraceEvents returns the recorded operations, oldest first. Nil when
// tracing is disabled.
func (c *Chaos) TraceEvents() []TraceEvent {
	return c.trace.snapshot()
}

// ResetTrace drops all recorded operations.
func (c *Chaos) ResetTrace() {
	c.trace.reset()
}

// Stats returns the fault counts so far.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		OpenFails:         c.counts[faultOpen].Load(),
		ReadFails:         c.counts[faultRead].Load(),
		WriteFails:        c.counts[faultWrite].Load(),
		PartialReads:      c.counts[faultPartialRead].Load(),
		PartialWrites:     c.counts[faultPartialWrite].Load(),
		ControlWriteFails: c.counts[faultControlWrite].Load(),
		StatFails:         c.counts[faultStat].Load(),
		MkdirAllFails:     c.counts[faultMkdirAll].Load(),
		SeekFails:         c.counts[faultSeek].Load(),
		CloseFails:        c.counts[faultClose].Load(),
	}
}

// TotalFaults returns the number of faults injected across all kinds.
func (c *Chaos) TotalFaults() int64 {
	var total int64

	for i := range c.counts {
		total += c.counts[i].Load()
	}

	return total
}

// fires decides whether f is injected now and counts it if so.
func (c *Chaos) fires(f fault) bool {
	if ChaosMode(c.mode.Load()) == ChaosModeNoOp {
		return false
	}

	rate := c.config.rate(f)
	if rate <= 0 || c.float() >= rate {
		return false
	}

	c.counts[f].Add(1)

	return true
}

// errnoFault injects f as a [*fs.PathError] on path when it fires, and
// records the failure in the trace under traceOp.
func (c *Chaos) errnoFault(f fault, traceOp, pathOp, path string) error {
	if !c.fires(f) {
		return nil
	}

	errno := c.pick(faultErrnos[f])
	err := pathError(pathOp, path, errno)

	c.trace.add(traceOp, path, "fail", err, true, TraceAttr{"errno", errno.Error()})

	return err
}

func (c *Chaos) float() float64 {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	return c.rng.Float64()
}

func (c *Chaos) intN(n int) int {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	return c.rng.IntN(n)
}

func (c *Chaos) pick(errnos []syscall.Errno) syscall.Errno {
	return errnos[c.intN(len(errnos))]
}

// cutoff returns a prefix length in [1, n-1]. n must be > 1.
func (c *Chaos) cutoff(n int) int {
	return c.intN(n-1) + 1
}

// OpenFile opens path on the wrapped FS unless an open fault fires.
func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	err := c.errnoFault(faultOpen, "open", "open", path)
	if err != nil {
		return nil, err
	}

	f, err := c.fs.OpenFile(path, flag, perm)

	c.trace.add("open", path, outcome(err), err, false)

	if err != nil {
		return nil, err
	}

	return &chaosFile{f: f, chaos: c, path: path}, nil
}

// ReadFile reads path unless a read fault fires.
func (c *Chaos) ReadFile(path string) ([]byte, error) {
	if c.fires(faultRead) {
		err := pathError("read", path, syscall.EIO)

		c.trace.add("readfile", path, "fail", err, true)

		return nil, err
	}

	data, err := c.fs.ReadFile(path)

	c.trace.add("readfile", path, outcome(err), err, false, TraceAttr{"n", strconv.Itoa(len(data))})

	return data, err
}

// WriteFile forwards to the wrapped FS unless a control-write fault fires.
// Forwarding keeps simulated control points working underneath.
func (c *Chaos) WriteFile(path string, data []byte, perm os.FileMode) error {
	err := c.errnoFault(faultControlWrite, "writefile", "write", path)
	if err != nil {
		return err
	}

	err = c.fs.WriteFile(path, data, perm)

	c.trace.add("writefile", path, outcome(err), err, false, TraceAttr{"n", strconv.Itoa(len(data))})

	return err
}

// MkdirAll creates path unless a mkdir fault fires.
func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	err := c.errnoFault(faultMkdirAll, "mkdirall", "mkdirall", path)
	if err != nil {
		return err
	}

	err = c.fs.MkdirAll(path, perm)

	c.trace.add("mkdirall", path, outcome(err), err, false, TraceAttr{"perm", fmt.Sprintf("%#o", perm)})

	return err
}

// Stat stats path unless a stat fault fires.
func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	err := c.errnoFault(faultStat, "stat", "stat", path)
	if err != nil {
		return nil, err
	}

	info, err := c.fs.Stat(path)

	c.trace.add("stat", path, outcome(err), err, false)

	if err != nil {
		return nil, err
	}

	return info, nil
}

// Exists checks path unless a stat fault fires.
func (c *Chaos) Exists(path string) (bool, error) {
	err := c.errnoFault(faultStat, "stat", "stat", path)
	if err != nil {
		return false, err
	}

	ok, err := c.fs.Exists(path)

	c.trace.add("exists", path, outcome(err), err, false, TraceAttr{"exists", strconv.FormatBool(ok)})

	return ok, err
}

var _ FS = (*Chaos)(nil)

// chaosFile injects faults into reads, writes, seeks and closes on one
// handle.
type chaosFile struct {
	f     File
	chaos *Chaos
	path  string
}

var _ File = (*chaosFile)(nil)

func (cf *chaosFile) Read(buf []byte) (int, error) {
	c := cf.chaos
	requested := TraceAttr{"requested", strconv.Itoa(len(buf))}

	if c.fires(faultRead) {
		err := pathError("read", cf.path, syscall.EIO)

		c.trace.add("file.read", cf.path, "fail", err, true, requested)

		return 0, err
	}

	// Shrink the request, not the result, so no byte is consumed unseen.
	if len(buf) > 1 && c.fires(faultPartialRead) {
		n, err := cf.f.Read(buf[:c.cutoff(len(buf))])

		c.trace.add("file.read", cf.path, "short_read", err, true, TraceAttr{"n", strconv.Itoa(n)}, requested)

		return n, err
	}

	n, err := cf.f.Read(buf)

	c.trace.add("file.read", cf.path, outcome(err), err, false, TraceAttr{"n", strconv.Itoa(n)}, requested)

	return n, err
}

func (cf *chaosFile) Write(data []byte) (int, error) {
	c := cf.chaos
	requested := TraceAttr{"requested", strconv.Itoa(len(data))}

	if c.fires(faultWrite) {
		errno := c.pick(faultErrnos[faultWrite])
		err := pathError("write", cf.path, errno)

		c.trace.add("file.write", cf.path, "fail", err, true, requested, TraceAttr{"errno", errno.Error()})

		return 0, err
	}

	if len(data) > 1 && c.fires(faultPartialWrite) {
		n, err := cf.f.Write(data[:c.cutoff(len(data))])
		if err != nil {
			c.trace.add("file.write", cf.path, "fail", err, false, TraceAttr{"n", strconv.Itoa(n)})

			return n, err
		}

		written := TraceAttr{"n", strconv.Itoa(n)}

		if c.float() < c.config.ShortWriteRate {
			err = &chaosError{Err: io.ErrShortWrite}

			c.trace.add("file.write", cf.path, "short_write", err, true, written, requested)

			return n, err
		}

		errno := c.pick(faultErrnos[faultPartialWrite])
		err = pathError("write", cf.path, errno)

		c.trace.add("file.write", cf.path, "partial_write", err, true, written, requested, TraceAttr{"errno", errno.Error()})

		return n, err
	}

	n, err := cf.f.Write(data)

	c.trace.add("file.write", cf.path, outcome(err), err, false, TraceAttr{"n", strconv.Itoa(n)})

	return n, err
}

func (cf *chaosFile) Seek(offset int64, whence int) (int64, error) {
	c := cf.chaos
	at := TraceAttr{"offset", strconv.FormatInt(offset, 10)}

	if c.fires(faultSeek) {
		err := pathError("seek", cf.path, syscall.EIO)

		c.trace.add("file.seek", cf.path, "fail", err, true, at)

		return 0, err
	}

	pos, err := cf.f.Seek(offset, whence)

	c.trace.add("file.seek", cf.path, outcome(err), err, false, at, TraceAttr{"pos", strconv.FormatInt(pos, 10)})

	return pos, err
}

func (cf *chaosFile) Close() error {
	c := cf.chaos
	inject := c.fires(faultClose)

	err := cf.f.Close()
	if err != nil {
		c.trace.add("file.close", cf.path, "fail", err, false)

		return err
	}

	if inject {
		err = pathError("close", cf.path, syscall.EIO)

		c.trace.add("file.close", cf.path, "fail", err, true)

		return err
	}

	c.trace.add("file.close", cf.path, "ok", nil, false)

	return nil
}

func outcome(err error) string {
	if err != nil {
		return "fail"
	}

	return "ok"
}

// TraceEvent is one operation seen by [Chaos], including ones it altered
// without returning an error, such as short reads.
type TraceEvent struct {
	// Seq numbers events from 1 in call order.
	Seq uint64
	// Op names the call: "open", "readfile", "file.read", "file.write", ...
	Op   string
	Path string
	// Err is what the call returned.
	Err error
	// Injected is set when Chaos changed the outcome.
	Injected bool
	// Kind is "ok", "fail", "short_read", "short_write" or "partial_write".
	Kind  string
	Attrs []TraceAttr
}

// TraceAttr is a key/value detail on a [TraceEvent].
type TraceAttr struct {
	Key   string
	Value string
}

// Attr returns the named attribute, or "".
func (e TraceEvent) Attr(key string) string {
	for _, a := range e.Attrs {
		if a.Key == key {
			return a.Value
		}
	}

	return ""
}

func (e TraceEvent) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "#%d", e.Seq)

	if e.Injected {
		fmt.Fprintf(&sb, " [CHAOS:%s]", e.Kind)
	}

	sb.WriteString(" " + e.Op)

	if e.Path != "" {
		fmt.Fprintf(&sb, " path=%q", e.Path)
	}

	for _, a := range e.Attrs {
		fmt.Fprintf(&sb, " %s=%s", a.Key, a.Value)
	}

	if !e.Injected {
		sb.WriteString(" " + e.Kind)
	}

	if e.Err != nil {
		fmt.Fprintf(&sb, " err=%v", e.Err)
	}

	return sb.String()
}

// chaosTrace keeps the most recent events in a fixed ring. A nil trace
// records nothing.
type chaosTrace struct {
	mu    sync.Mutex
	ring  []TraceEvent
	start int
	n     int
	seq   uint64
}

func newChaosTrace(capacity int) *chaosTrace {
	if capacity <= 0 {
		return nil
	}

	return &chaosTrace{ring: make([]TraceEvent, capacity)}
}

func (t *chaosTrace) add(op, path, kind string, err error, injected bool, attrs ...TraceAttr) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	e := TraceEvent{Seq: t.seq, Op: op, Path: path, Err: err, Injected: injected, Kind: kind, Attrs: attrs}

	if t.n < len(t.ring) {
		t.ring[(t.start+t.n)%len(t.ring)] = e
		t.n++

		return
	}

	// Full: overwrite the oldest.
	t.ring[t.start] = e
	t.start = (t.start + 1) % len(t.ring)
}

func (t *chaosTrace) snapshot() []TraceEvent {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TraceEvent, t.n)
	for i := range t.n {
		out[i] = t.ring[(t.start+i)%len(t.ring)]
	}

	return out
}

func (t *chaosTrace) reset() {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.start, t.n = 0, 0
}

func (t *chaosTrace) String() string {
	lines := make([]string, 0)

	for _, e := range t.snapshot() {
		lines = append(lines, e.String())
	}

	return strings.Join(lines, "\n")
}

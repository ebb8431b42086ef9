// Package registry implements the per-daemon shared Transfer Registry: the
// map from UUID to open TransferRecord, and the two-level locking discipline
// (stateLock before per-record lock, try-lock-only on the record, back off
// and restart on contention) specified in spec.md §3 and §5.
//
// The registry is grounded on goshare's internal/store.Peermanager
// singleton-plus-mutex-map shape, generalized from a fixed peer map to a
// record type with its own per-entry lock, and the retry loop is built on
// github.com/cenkalti/backoff instead of a hand-rolled sleep, matching the
// constant tens-of-microseconds backoff spec.md's design notes call for.
package registry

import (
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"etdc/internal/etdaddr"
	"etdc/internal/etderrors"
	"etdc/internal/openmode"
	"etdc/internal/uuidtok"
)

// File is the minimal file-like handle a TransferRecord owns: something
// seekable, readable, writable and closable. *os.File satisfies it.
type File interface {
	io.ReadWriteCloser
	Seek(offset int64, whence int) (int64, error)
}

// Record is one open transfer: an owned file descriptor, the normalized
// path it was opened against, the mode it was opened with, and a per-record
// mutex guarding I/O on Fd.
type Record struct {
	Fd       File
	Path     string
	OpenMode openmode.Mode

	lock sync.Mutex
}

// Lock and Unlock expose the record's own mutex to callers that have
// already acquired it via the registry's try-lock-and-restart protocol
// (Acquire/AcquireBounded), so they can hold it across blocking I/O without going
// back through the registry.
func (r *Record) Lock()   { r.lock.Lock() }
func (r *Record) Unlock() { r.lock.Unlock() }

// backoffPolicy is the tens-of-microseconds constant backoff spec.md's
// concurrency design calls for: long enough to desynchronize spinning
// contenders, short enough that a transfer lock held across a 10MiB
// push_n iteration isn't a real wait.
func backoffPolicy() backoff.BackOff {
	b := backoff.NewConstantBackOff(50 * time.Microsecond)
	return b
}

// reentrantAcquireMaxRetries bounds AcquireBounded's wait for sendFile's and
// getFile's own-record reentrancy check: unlike Acquire (used by callers
// that legitimately wait for a record to show up or free up), a second
// sendFile/getFile call landing on a record its first call already holds
// should fail fast with AlreadyBusy rather than queue behind it forever.
const reentrantAcquireMaxRetries = 20

// Registry is the process-wide SharedState: transfers keyed by UUID plus
// the advertised data-channel address list. It outlives any one Service
// and is shared by every concurrent Service in the daemon.
type Registry struct {
	mu        sync.Mutex
	transfers map[uuidtok.UUID]*Record
	dataAddrs []etdaddr.SockName
}

// New returns an empty registry advertising the given data-channel
// addresses.
func New(dataAddrs []etdaddr.SockName) *Registry {
	return &Registry{
		transfers: make(map[uuidtok.UUID]*Record),
		dataAddrs: dataAddrs,
	}
}

// DataAddrs returns the currently advertised data-channel addresses.
func (r *Registry) DataAddrs() []etdaddr.SockName {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]etdaddr.SockName, len(r.dataAddrs))
	copy(out, r.dataAddrs)
	return out
}

// SetDataAddrs replaces the advertised data-channel address list.
func (r *Registry) SetDataAddrs(addrs []etdaddr.SockName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dataAddrs = append([]etdaddr.SockName(nil), addrs...)
}

// Len reports the number of currently open transfer records, used by
// health diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transfers)
}

// Busy reports whether uuid already has an open record.
func (r *Registry) Busy(uuid uuidtok.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.transfers[uuid]
	return ok
}

// PathRegistered reports whether path is already registered, and if so
// whether every record holding it is in Read mode.
func (r *Registry) PathRegistered(path string) (present bool, allRead bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	allRead = true
	for _, rec := range r.transfers {
		if rec.Path == path {
			present = true
			if rec.OpenMode != openmode.Read {
				allRead = false
			}
		}
	}
	return present, allRead
}

// Insert adds a new record under uuid. It fails with AlreadyBusy if uuid is
// already present. Callers are expected to have already validated the
// path-conflict rule (PathRegistered) under the same brief critical
// section that performed the actual file open, to keep the open-and-insert
// sequence atomic with respect to other Services.
func (r *Registry) Insert(uuid uuidtok.UUID, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transfers[uuid]; ok {
		return &etderrors.AlreadyBusy{UUID: uuid.String()}
	}
	r.transfers[uuid] = rec
	return nil
}

// WithNewRecord atomically checks the path-conflict rule and, if
// compatible, opens and inserts a new record in a single critical section.
// open is called while holding the registry's state lock — it must not
// block on anything but the filesystem, and must not re-enter the
// registry.
func (r *Registry) WithNewRecord(uuid uuidtok.UUID, path string, mode openmode.Mode, conflictsWithPresent func(existingAllRead bool) bool, open func() (*Record, error)) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.transfers[uuid]; ok {
		return nil, &etderrors.AlreadyBusy{UUID: uuid.String()}
	}
	present, allRead := false, true
	for _, rec := range r.transfers {
		if rec.Path == path {
			present = true
			if rec.OpenMode != openmode.Read {
				allRead = false
			}
		}
	}
	if present && conflictsWithPresent(allRead) {
		return nil, &etderrors.PathConflict{Path: path}
	}

	rec, err := open()
	if err != nil {
		return nil, err
	}
	r.transfers[uuid] = rec
	return rec, nil
}

// Find locates the record for uuid while holding the state lock just long
// enough to return it. The returned record may be removed concurrently;
// callers that need to operate on it safely must use Acquire instead.
func (r *Registry) Find(uuid uuidtok.UUID) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.transfers[uuid]
	return rec, ok
}

// Acquire implements the two-level ordered locking protocol of spec.md §5:
// locate the record under the state lock, try-lock the record itself, and
// on contention release the state lock, back off briefly, and restart the
// search (because the record may have been removed while we were asleep).
// On success it returns the record already locked by this goroutine and the
// caller is responsible for calling rec.Unlock() when done. It returns
// false if no record exists for uuid.
func (r *Registry) Acquire(uuid uuidtok.UUID) (rec *Record, ok bool) {
	op := func() error {
		r.mu.Lock()
		found, present := r.transfers[uuid]
		if !present {
			r.mu.Unlock()
			return nil // not found: stop retrying, report via outer `ok`
		}
		if !found.lock.TryLock() {
			r.mu.Unlock()
			return errRetryLock
		}
		r.mu.Unlock()
		rec = found
		ok = true
		return nil
	}
	// backoff.Retry stops as soon as op returns nil; errRetryLock is the
	// only retryable sentinel, so this never gives up early.
	_ = backoff.Retry(op, backoffPolicy())
	return rec, ok
}

// AcquireBounded is Acquire's reentrancy-checking sibling: it gives up after
// reentrantAcquireMaxRetries backoff steps instead of retrying forever. found
// reports whether uuid has any record at all (false means "not initialized
// yet", same as Acquire's ok=false); err is a non-nil *etderrors.AlreadyBusy
// when the record exists but its lock stayed held for the whole retry
// budget, per SPEC_FULL.md §9 point 3.
func (r *Registry) AcquireBounded(uuid uuidtok.UUID) (rec *Record, found bool, err error) {
	op := func() error {
		r.mu.Lock()
		got, present := r.transfers[uuid]
		if !present {
			r.mu.Unlock()
			return nil // not found: stop retrying immediately
		}
		found = true
		if !got.lock.TryLock() {
			r.mu.Unlock()
			return errRetryLock
		}
		r.mu.Unlock()
		rec = got
		return nil
	}
	_ = backoff.Retry(op, backoff.WithMaxRetries(backoffPolicy(), reentrantAcquireMaxRetries))
	if found && rec == nil {
		err = &etderrors.AlreadyBusy{UUID: uuid.String()}
	}
	return rec, found, err
}

type retrySentinel struct{}

func (retrySentinel) Error() string { return "registry: record locked, retrying" }

var errRetryLock = retrySentinel{}

// Remove implements removeUUID's race-free semantics: it repeats the same
// acquire protocol as Acquire, then closes the file descriptor and deletes
// the map entry before releasing the record's own lock, so no concurrent
// transfer can observe a half-removed record.
func (r *Registry) Remove(uuid uuidtok.UUID) (bool, error) {
	var removed bool
	var ioErr error

	op := func() error {
		r.mu.Lock()
		found, present := r.transfers[uuid]
		if !present {
			r.mu.Unlock()
			return nil
		}
		if !found.lock.TryLock() {
			r.mu.Unlock()
			return errRetryLock
		}
		// Both locks held. Close and detach before dropping either lock so
		// no one can observe a removed-but-still-open or still-mapped
		// record.
		if err := found.Fd.Close(); err != nil {
			ioErr = etderrors.NewIOError("close", found.Path, err)
		}
		delete(r.transfers, uuid)
		found.lock.Unlock()
		r.mu.Unlock()
		removed = true
		return nil
	}
	_ = backoff.Retry(op, backoffPolicy())
	return removed, ioErr
}

package shmtable

import (
	"strconv"

	"github.com/llxisdsh/shmtable/internal/debug"
)

// worker is the handle of one admitted Insert, Delete or Find.
//
// It runs in two phases: locked opens as soon as the bucket lock is held,
// done opens after the operation finished and the lock was released. The
// Dispatcher waits on locked before admitting the next message and on done
// when it joins the batch.
type worker struct {
	id     uint64
	msg    Message
	locked Latch
	done   Latch
}

func (d *Dispatcher) work(w *worker) {
	t, v := d.table, w.msg.Value
	if d.cfg.verbose {
		d.trace(w, "started")
	}

	switch w.msg.Op {
	case OpInsert:
		t.LockForWrite(v)
		w.locked.Open()
		d.runHook(w)
		if d.cfg.verbose {
			d.trace(w, "inserting "+strconv.Itoa(int(v)))
		}
		t.InsertLocked(v)
		t.UnlockForWrite(v)

	case OpDelete:
		t.LockForWrite(v)
		w.locked.Open()
		d.runHook(w)
		if d.cfg.verbose {
			d.trace(w, "removing "+strconv.Itoa(int(v)))
		}
		t.RemoveLocked(v)
		t.UnlockForWrite(v)

	case OpFind:
		t.LockForRead(v)
		w.locked.Open()
		d.runHook(w)
		found := t.FindLocked(v)
		t.UnlockForRead(v)
		if d.cfg.verbose {
			if found {
				d.trace(w, "element "+strconv.Itoa(int(v))+" found")
			} else {
				d.trace(w, "element "+strconv.Itoa(int(v))+" not found")
			}
		}
		if d.cfg.onFind != nil {
			d.cfg.onFind(v, found)
		}

	default:
		// admit only hands out the three operations above.
		w.locked.Open()
	}

	if d.cfg.verbose {
		d.trace(w, "finished")
	}
	d.slots.Release(1)
	w.done.Open()
}

func (d *Dispatcher) runHook(w *worker) {
	if d.cfg.hook != nil {
		d.cfg.hook(w.msg)
	}
}

func (d *Dispatcher) trace(w *worker, msg string) {
	debug.DropMessage("worker "+strconv.FormatUint(w.id, 10), msg)
}

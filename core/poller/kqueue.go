//go:build darwin || freebsd

package poller

import (
	"golang.org/x/sys/unix"
)

// kqueueDevice is a kqueue-based multiplexer. A user event interrupts Wait.
type kqueueDevice struct {
	kqfd   int
	events []unix.Kevent_t
}

const wakeIdent = 0

func newDevice() (device, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	var ev unix.Kevent_t
	unix.SetKevent(&ev, wakeIdent, unix.EVFILT_USER, unix.EV_ADD|unix.EV_CLEAR)
	if _, err := unix.Kevent(kqfd, []unix.Kevent_t{ev}, nil, nil); err != nil {
		unix.Close(kqfd)
		return nil, err
	}
	return &kqueueDevice{
		kqfd:   kqfd,
		events: make([]unix.Kevent_t, 1024),
	}, nil
}

func (d *kqueueDevice) update(fd int, read, write, _ bool) error {
	changes := make([]unix.Kevent_t, 0, 2)
	if read {
		var ev unix.Kevent_t
		unix.SetKevent(&ev, fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ONESHOT)
		changes = append(changes, ev)
	}
	if write {
		var ev unix.Kevent_t
		unix.SetKevent(&ev, fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ONESHOT)
		changes = append(changes, ev)
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(d.kqfd, changes, nil, nil)
	return err
}

func (d *kqueueDevice) remove(fd int) error {
	for _, filter := range []int{unix.EVFILT_READ, unix.EVFILT_WRITE} {
		var ev unix.Kevent_t
		unix.SetKevent(&ev, fd, filter, unix.EV_DELETE)
		// One-shot filters that already fired are gone; ENOENT is expected.
		if _, err := unix.Kevent(d.kqfd, []unix.Kevent_t{ev}, nil, nil); err != nil && err != unix.ENOENT {
			return err
		}
	}
	return nil
}

func (d *kqueueDevice) wait(out []readyEvent) (int, error) {
	limit := len(out)
	if limit > len(d.events) {
		limit = len(d.events)
	}
	n, err := unix.Kevent(d.kqfd, nil, d.events[:limit], nil)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	for i := 0; i < n; i++ {
		ev := d.events[i]
		switch ev.Filter {
		case unix.EVFILT_USER:
			continue
		case unix.EVFILT_READ:
			out[count] = readyEvent{fd: int(ev.Ident), read: true}
		case unix.EVFILT_WRITE:
			out[count] = readyEvent{fd: int(ev.Ident), write: true}
		default:
			continue
		}
		count++
	}
	return count, nil
}

func (d *kqueueDevice) wake() error {
	var ev unix.Kevent_t
	unix.SetKevent(&ev, wakeIdent, unix.EVFILT_USER, 0)
	ev.Fflags = unix.NOTE_TRIGGER
	_, err := unix.Kevent(d.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (d *kqueueDevice) close() error {
	return unix.Close(d.kqfd)
}

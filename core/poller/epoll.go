//go:build linux

package poller

import (
	"golang.org/x/sys/unix"
)

// epollDevice is an epoll-based multiplexer. An eventfd interrupts Wait.
type epollDevice struct {
	epfd   int
	wakefd int
	events []unix.EpollEvent
}

func newDevice() (device, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, err
	}
	return &epollDevice{
		epfd:   epfd,
		wakefd: wakefd,
		events: make([]unix.EpollEvent, 1024),
	}, nil
}

func (d *epollDevice) update(fd int, read, write, added bool) error {
	// EPOLLRDHUP: detect peer shutdown on the read side.
	ev := unix.EpollEvent{Events: unix.EPOLLONESHOT, Fd: int32(fd)}
	if read {
		ev.Events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if write {
		ev.Events |= unix.EPOLLOUT
	}
	op := unix.EPOLL_CTL_MOD
	if !added {
		op = unix.EPOLL_CTL_ADD
	}
	return unix.EpollCtl(d.epfd, op, fd, &ev)
}

func (d *epollDevice) remove(fd int) error {
	return unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (d *epollDevice) wait(out []readyEvent) (int, error) {
	limit := len(out)
	if limit > len(d.events) {
		limit = len(d.events)
	}
	n, err := unix.EpollWait(d.epfd, d.events[:limit], -1)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	count := 0
	for i := 0; i < n; i++ {
		ev := d.events[i]
		if int(ev.Fd) == d.wakefd {
			var buf [8]byte
			_, _ = unix.Read(d.wakefd, buf[:])
			continue
		}
		failed := ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0
		out[count] = readyEvent{
			fd:    int(ev.Fd),
			read:  failed || ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			write: failed || ev.Events&unix.EPOLLOUT != 0,
		}
		count++
	}
	return count, nil
}

func (d *epollDevice) wake() error {
	buf := [8]byte{1}
	_, err := unix.Write(d.wakefd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (d *epollDevice) close() error {
	unix.Close(d.wakefd)
	return unix.Close(d.epfd)
}

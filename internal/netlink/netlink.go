// Package netlink abstracts the Wi-Fi link so the boot mode controller can
// distinguish credential failures from transient radio problems without
// knowing anything about the underlying network stack.
package netlink

import (
	"context"
	"errors"
)

var (
	// ErrAuthFailed indicates the access point rejected the credentials.
	// This is a configuration-level failure: the stored config needs
	// user attention.
	ErrAuthFailed = errors.New("wifi authentication failed")

	// ErrAPUnreachable indicates the access point could not be found or
	// joined. This is a link-level failure: the stored config stays
	// intact and the connection is retried.
	ErrAPUnreachable = errors.New("wifi access point unreachable")
)

// LinkStatus describes the current state of the Wi-Fi link.
type LinkStatus struct {
	Connected bool
	SSID      string
	IPAddress string
}

// Manager is the narrow interface to the Wi-Fi radio. Implementations wrap
// whatever platform facility manages the station interface.
type Manager interface {
	// Connect joins the given network. It returns ErrAuthFailed when the
	// credentials are rejected and ErrAPUnreachable when the AP cannot
	// be joined for link-level reasons.
	Connect(ctx context.Context, ssid, psk string) error

	// Status reports the current link state.
	Status() LinkStatus

	// Disconnect tears the link down.
	Disconnect() error
}

// StaticManager is a Manager that always reports a connected link. Used on
// development hosts where the machine's own network is already up.
type StaticManager struct {
	IP string
}

func (s *StaticManager) Connect(ctx context.Context, ssid, psk string) error { return nil }

func (s *StaticManager) Status() LinkStatus {
	ip := s.IP
	if ip == "" {
		ip = "127.0.0.1"
	}
	return LinkStatus{Connected: true, IPAddress: ip}
}

func (s *StaticManager) Disconnect() error { return nil }

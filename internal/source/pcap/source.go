// Package pcap captures live traffic through libpcap.
package pcap

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket/pcap"

	"firestige.xyz/vesper/internal/source"
)

const Name = "pcap"

const (
	DefaultSnapLen = 65535
	DefaultTimeout = 10 * time.Millisecond
)

func init() {
	source.Register(Name, func(cfg source.Config) (source.Source, error) {
		s, err := Open(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Source reads frames from a live libpcap handle.
type Source struct {
	*source.Reader
	handle *pcap.Handle
	device string
}

// Open activates a capture handle on cfg.Device, or on the first device libpcap reports
// when no device is configured.
func Open(cfg source.Config) (*Source, error) {
	device := cfg.Device
	if device == "" {
		var err error
		if device, err = DefaultDevice(); err != nil {
			return nil, err
		}
	}
	snapLen := cfg.SnapLen
	if snapLen <= 0 {
		snapLen = DefaultSnapLen
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	inactive, err := pcap.NewInactiveHandle(device)
	if err != nil {
		return nil, fmt.Errorf("pcap: open %s: %w", device, err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(snapLen); err != nil {
		return nil, fmt.Errorf("pcap: snaplen: %w", err)
	}
	if err := inactive.SetPromisc(cfg.Promiscuous); err != nil {
		return nil, fmt.Errorf("pcap: promisc: %w", err)
	}
	if err := inactive.SetTimeout(timeout); err != nil {
		return nil, fmt.Errorf("pcap: timeout: %w", err)
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("pcap: activate %s: %w", device, err)
	}

	if cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(cfg.BPFFilter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("pcap: bpf filter %q: %w", cfg.BPFFilter, err)
		}
	}

	return &Source{
		Reader: source.NewReader(handle, source.FramingFor(handle.LinkType()), isTimeout),
		handle: handle,
		device: device,
	}, nil
}

// Device returns the interface the handle is bound to.
func (s *Source) Device() string {
	return s.device
}

func (s *Source) Close() error {
	s.handle.Close()
	return nil
}

// The read timeout only bounds how long Next blocks before checking its context.
func isTimeout(err error) bool {
	return errors.Is(err, pcap.NextErrorTimeoutExpired)
}

// Device describes a capture interface.
type Device struct {
	Name        string
	Description string
	Addresses   []string
}

// Devices lists the interfaces libpcap can capture on.
func Devices() ([]Device, error) {
	ifs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("pcap: find devices: %w", err)
	}

	devices := make([]Device, 0, len(ifs))
	for _, ifc := range ifs {
		d := Device{Name: ifc.Name, Description: ifc.Description}
		for _, addr := range ifc.Addresses {
			d.Addresses = append(d.Addresses, addr.IP.String())
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// DefaultDevice returns the first capture device, the one libpcap itself would pick.
func DefaultDevice() (string, error) {
	devices, err := Devices()
	if err != nil {
		return "", err
	}
	if len(devices) == 0 {
		return "", errors.New("pcap: no capture device found")
	}
	return devices[0].Name, nil
}

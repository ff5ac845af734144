/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package station

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Type selects the transport used to switch a special station.
type Type uint8

const (
	TypeStandard Type = 0x00
	TypeRF       Type = 0x01
	TypeRemote   Type = 0x02
	TypeGPIO     Type = 0x03
	TypeHTTP     Type = 0x04
)

func (t Type) String() string {
	switch t {
	case TypeStandard:
		return "standard"
	case TypeRF:
		return "rf"
	case TypeRemote:
		return "remote"
	case TypeGPIO:
		return "gpio"
	case TypeHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// ParseType maps the names used in configuration files.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return TypeStandard, nil
	case "rf":
		return TypeRF, nil
	case "remote":
		return TypeRemote, nil
	case "gpio":
		return TypeGPIO, nil
	case "http":
		return TypeHTTP, nil
	}
	return 0, fmt.Errorf("unknown station type %q", s)
}

// ErrInvalidSpecialData is returned when the stored data string does not
// decode for the station type.
var ErrInvalidSpecialData = errors.New("invalid special station data")

// Kind describes how a station is switched. The set of implementations is
// closed: Standard, RFCode, RemoteTarget, GPIOPin and HTTPTarget.
type Kind interface {
	Type() Type
	sealed()
}

// Standard stations are driven by the output bank only.
type Standard struct{}

func (Standard) Type() Type { return TypeStandard }
func (Standard) sealed()    {}

// RFCode is a 24-bit on/off code pair sent by a 433MHz transmitter.
// Timing is the base pulse length in microseconds.
type RFCode struct {
	On     uint32
	Off    uint32
	Timing uint16
}

func (RFCode) Type() Type { return TypeRF }
func (RFCode) sealed()    {}

// RemoteTarget addresses a station on another controller.
type RemoteTarget struct {
	Addr    netip.AddrPort
	Station int
}

func (RemoteTarget) Type() Type { return TypeRemote }
func (RemoteTarget) sealed()    {}

// GPIOPin is a relay wired directly to a local GPIO line.
type GPIOPin struct {
	Pin        int
	ActiveHigh bool
}

func (GPIOPin) Type() Type { return TypeGPIO }
func (GPIOPin) sealed()    {}

// HTTPTarget issues GET /<cmd> against Server:Port.
type HTTPTarget struct {
	Server string
	Port   int
	OnCmd  string
	OffCmd string
}

func (HTTPTarget) Type() Type { return TypeHTTP }
func (HTTPTarget) sealed()    {}

// Command returns the path for the requested state.
func (h HTTPTarget) Command(on bool) string {
	if on {
		return h.OnCmd
	}
	return h.OffCmd
}

// ParseKind decodes the stored data string of a special station.
//
//	rf:     6 hex on code, 6 hex off code, 4 hex timing
//	remote: 8 hex IPv4, 4 hex port, 2 hex station index
//	gpio:   2 decimal pin digits, 1 active level digit
//	http:   server,port,on_cmd,off_cmd
func ParseKind(t Type, data string) (Kind, error) {
	switch t {
	case TypeStandard:
		return Standard{}, nil
	case TypeRF:
		return parseRF(data)
	case TypeRemote:
		return parseRemote(data)
	case TypeGPIO:
		return parseGPIO(data)
	case TypeHTTP:
		return parseHTTP(data)
	}
	return nil, fmt.Errorf("%w: unsupported type %d", ErrInvalidSpecialData, t)
}

func parseRF(data string) (Kind, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("%w: rf code needs 16 hex digits, got %d", ErrInvalidSpecialData, len(data))
	}
	on, err1 := hexField(data[0:6])
	off, err2 := hexField(data[6:12])
	timing, err3 := hexField(data[12:16])
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpecialData, err)
	}
	if on == 0 || off == 0 || timing == 0 {
		return nil, fmt.Errorf("%w: rf code fields must be nonzero", ErrInvalidSpecialData)
	}
	return RFCode{On: uint32(on), Off: uint32(off), Timing: uint16(timing)}, nil
}

func parseRemote(data string) (Kind, error) {
	if len(data) < 14 {
		return nil, fmt.Errorf("%w: remote target needs 14 hex digits, got %d", ErrInvalidSpecialData, len(data))
	}
	ip, err1 := hexField(data[0:8])
	port, err2 := hexField(data[8:12])
	sid, err3 := hexField(data[12:14])
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpecialData, err)
	}
	addr := netip.AddrFrom4([4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)})
	return RemoteTarget{Addr: netip.AddrPortFrom(addr, uint16(port)), Station: int(sid)}, nil
}

func parseGPIO(data string) (Kind, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("%w: gpio needs 3 digits, got %q", ErrInvalidSpecialData, data)
	}
	pin, err := strconv.Atoi(data[0:2])
	if err != nil {
		return nil, fmt.Errorf("%w: gpio pin %q", ErrInvalidSpecialData, data[0:2])
	}
	switch data[2] {
	case '0':
		return GPIOPin{Pin: pin, ActiveHigh: false}, nil
	case '1':
		return GPIOPin{Pin: pin, ActiveHigh: true}, nil
	}
	return nil, fmt.Errorf("%w: gpio active level %q", ErrInvalidSpecialData, data[2])
}

func parseHTTP(data string) (Kind, error) {
	parts := strings.Split(data, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: http station needs server,port,on,off", ErrInvalidSpecialData)
	}
	port, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: http port %q", ErrInvalidSpecialData, parts[1])
	}
	server := strings.TrimSpace(parts[0])
	if server == "" {
		return nil, fmt.Errorf("%w: http server is empty", ErrInvalidSpecialData)
	}
	return HTTPTarget{
		Server: server,
		Port:   port,
		OnCmd:  strings.TrimPrefix(strings.TrimSpace(parts[2]), "/"),
		OffCmd: strings.TrimPrefix(strings.TrimSpace(parts[3]), "/"),
	}, nil
}

func hexField(s string) (uint64, error) {
	return strconv.ParseUint(s, 16, 32)
}

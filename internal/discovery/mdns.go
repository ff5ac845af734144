/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package discovery advertises the controller on the LAN and finds other
// controllers, such as remote extension units.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
	"github.com/rs/zerolog"
)

// Service naming
const (
	ServiceType = "_openhome._tcp"
	Domain      = "local."
)

// Info is advertised in TXT records.
type Info struct {
	Name            string
	Version         string
	Stations        int
	RemoteExtension bool
}

// EncodeTXT turns info into key=value records.
func EncodeTXT(info Info) []string {
	ext := "0"
	if info.RemoteExtension {
		ext = "1"
	}
	return []string{
		"ver=" + info.Version,
		"nst=" + strconv.Itoa(info.Stations),
		"ext=" + ext,
	}
}

// DecodeTXT is the inverse of EncodeTXT. Unknown keys are ignored.
func DecodeTXT(records []string) Info {
	var info Info
	for _, r := range records {
		k, v, ok := strings.Cut(r, "=")
		if !ok {
			continue
		}
		switch k {
		case "ver":
			info.Version = v
		case "nst":
			info.Stations, _ = strconv.Atoi(v)
		case "ext":
			info.RemoteExtension = v == "1"
		}
	}
	return info
}

// Advertiser registers the controller service.
type Advertiser struct {
	iface  string
	logger zerolog.Logger

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser bound to iface, or every interface
// when iface is empty.
func NewAdvertiser(iface string, logger zerolog.Logger) *Advertiser {
	return &Advertiser{iface: iface, logger: logger.With().Str("component", "discovery").Logger()}
}

func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// Advertise starts, or restarts with new TXT records, the service.
func (a *Advertiser) Advertise(info Info, port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	instance := info.Name
	if instance == "" {
		instance = "OpenHome"
	}
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, EncodeTXT(info), interfaces(a.iface))
	if err != nil {
		return fmt.Errorf("register mdns service: %w", err)
	}
	a.server = server
	a.logger.Info().Str("instance", instance).Int("port", port).Msg("mdns service advertised")
	return nil
}

// Shutdown withdraws the service.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Peer is a controller found on the network.
type Peer struct {
	Instance  string
	Host      string
	Port      int
	Addresses []string
	Info      Info
}

// Browse collects peers announced within timeout, sorted by instance.
func Browse(ctx context.Context, iface string, timeout time.Duration) ([]Peer, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	var opts []zeroconf.ClientOption
	if ifs := interfaces(iface); ifs != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifs))
	}

	errc := make(chan error, 1)
	go func() {
		errc <- zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	peers := make(map[string]*Peer)
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return sortPeers(peers), nil
			}
			mergePeer(peers, e)
		case <-removed:
		case <-ctx.Done():
			return sortPeers(peers), nil
		case err := <-errc:
			if err != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("browse mdns: %w", err)
			}
		}
	}
}

func mergePeer(peers map[string]*Peer, e *zeroconf.ServiceEntry) {
	addrs := make([]string, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	for _, ip := range e.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range e.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	p, found := peers[e.Instance]
	if !found {
		peers[e.Instance] = &Peer{
			Instance:  e.Instance,
			Host:      e.HostName,
			Port:      e.Port,
			Addresses: addrs,
			Info:      DecodeTXT(e.Text),
		}
		return
	}
	for _, a := range addrs {
		dup := false
		for _, have := range p.Addresses {
			if have == a {
				dup = true
				break
			}
		}
		if !dup {
			p.Addresses = append(p.Addresses, a)
		}
	}
}

func sortPeers(m map[string]*Peer) []Peer {
	out := make([]Peer, 0, len(m))
	for _, p := range m {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

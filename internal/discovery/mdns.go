// Package discovery announces the transfer server on the local network over
// mDNS and lets clients find it.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// DefaultService is the mDNS service name without domain suffix.
	DefaultService = "_securexfer._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// DefaultBrowseTimeout bounds one Browse call.
	DefaultBrowseTimeout = 3 * time.Second
	// ProtocolVersion is published in the TXT record.
	ProtocolVersion = 1
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Config controls announcing and browsing.
type Config struct {
	Service       string
	Domain        string
	Instance      string
	Port          int
	BrowseTimeout time.Duration

	registerFn registerFunc
	browseFn   browseFunc
}

func (c Config) withDefaults() Config {
	out := c
	if out.Service == "" {
		out.Service = DefaultService
	}
	if out.Domain == "" {
		out.Domain = DefaultDomain
	}
	if out.BrowseTimeout <= 0 {
		out.BrowseTimeout = DefaultBrowseTimeout
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

// Announcer advertises the server while it runs.
type Announcer struct {
	server *zeroconf.Server
}

// Announce registers the service record.
func Announce(config Config) (*Announcer, error) {
	cfg := config.withDefaults()
	if strings.TrimSpace(cfg.Instance) == "" {
		return nil, errors.New("instance name is required")
	}
	if cfg.Port <= 0 {
		return nil, errors.New("port must be > 0")
	}

	txt := []string{
		"version=" + strconv.Itoa(ProtocolVersion),
		"transport=tls",
	}
	server, err := cfg.registerFn(cfg.Instance, cfg.Service, cfg.Domain, cfg.Port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}
	return &Announcer{server: server}, nil
}

// Stop withdraws the record.
func (a *Announcer) Stop() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}

// Server is one discovered transfer server.
type Server struct {
	Instance string
	Host     string
	Port     int
	Addrs    []string
}

// Address returns host:port for dialing, preferring a resolved IP.
func (s Server) Address() string {
	host := s.Host
	if len(s.Addrs) > 0 {
		host = s.Addrs[0]
	}
	return net.JoinHostPort(strings.TrimSuffix(host, "."), strconv.Itoa(s.Port))
}

// Browse collects announcements until the browse timeout or ctx ends.
func Browse(ctx context.Context, config Config) ([]Server, error) {
	cfg := config.withDefaults()

	browse := cfg.browseFn
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, err
		}
		browse = resolver.Browse
	}

	scanCtx, cancel := context.WithTimeout(ctx, cfg.BrowseTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	found := make(map[string]Server)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-scanCtx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if s, ok := parseEntry(entry); ok {
					found[s.Instance] = s
				}
			}
		}
	}()

	if err := browse(scanCtx, cfg.Service, cfg.Domain, entries); err != nil {
		return nil, fmt.Errorf("browse mDNS: %w", err)
	}
	<-scanCtx.Done()
	<-done

	out := make([]Server, 0, len(found))
	for _, s := range found {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func parseEntry(entry *zeroconf.ServiceEntry) (Server, bool) {
	if entry == nil || entry.Port <= 0 {
		return Server{}, false
	}

	var addrs []string
	seen := make(map[string]struct{})
	for _, ip := range append(append([]net.IP(nil), entry.AddrIPv4...), entry.AddrIPv6...) {
		if ip == nil {
			continue
		}
		raw := ip.String()
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		addrs = append(addrs, raw)
	}

	name := strings.TrimSpace(entry.Instance)
	if name == "" {
		name = entry.HostName
	}
	if entry.HostName == "" && len(addrs) == 0 {
		return Server{}, false
	}

	return Server{
		Instance: name,
		Host:     entry.HostName,
		Port:     entry.Port,
		Addrs:    addrs,
	}, true
}

package networking

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/wlt-go/wlt/src/internal/log"
)

const (
	defaultResolvConf = "/etc/resolv.conf"
	defaultDNSPort    = "53"
	resolverTimeout   = 2 * time.Second
)

// Resolver looks up the PTR name of a caller for display.
type Resolver struct {
	servers []string
	client  *dns.Client
}

// NewResolver uses the nameservers of resolvConf. An unreadable file yields
// a resolver that returns the address itself.
func NewResolver(resolvConf string) *Resolver {
	if resolvConf == "" {
		resolvConf = defaultResolvConf
	}

	r := &Resolver{
		client: &dns.Client{
			Net:     "udp",
			Timeout: resolverTimeout,
		},
	}

	cfg, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil {
		log.Debugf("Reverse lookups disabled: %v", err)
		return r
	}
	for _, server := range cfg.Servers {
		r.servers = append(r.servers, net.JoinHostPort(server, cfg.Port))
	}
	return r
}

// NewResolverWithServers queries the given host:port servers.
func NewResolverWithServers(servers ...string) *Resolver {
	r := &Resolver{
		client: &dns.Client{
			Net:     "udp",
			Timeout: resolverTimeout,
		},
	}
	for _, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, defaultDNSPort)
		}
		r.servers = append(r.servers, s)
	}
	return r
}

// Hostname returns the PTR name of addr without the trailing dot,
// or the address itself when nothing resolves.
func (r *Resolver) Hostname(ctx context.Context, addr netip.Addr) string {
	fallback := addr.String()
	if r == nil || len(r.servers) == 0 {
		return fallback
	}

	arpa, err := dns.ReverseAddr(addr.Unmap().String())
	if err != nil {
		return fallback
	}

	req := new(dns.Msg)
	req.SetQuestion(arpa, dns.TypePTR)

	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, req, server)
		if err != nil {
			log.Debugf("PTR lookup of %s via %s failed: %v", addr, server, err)
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			continue
		}
		for _, rr := range resp.Answer {
			if ptr, ok := rr.(*dns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, ".")
			}
		}
		return fallback
	}
	return fallback
}

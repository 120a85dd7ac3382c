package output

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/zberry/dump978/pkg/dispatch"
)

// Listener accepts connections on a single bound address and hands each one
// to the connection factory.
type Listener struct {
	ln      net.Listener
	d       *dispatch.Dispatch
	factory ConnectionFactory
	log     logrus.FieldLogger
}

// ParseListenSpec splits a "[host:]port" option into its parts. A bare port
// means the wildcard address.
func ParseListenSpec(spec string) (host, port string, err error) {
	if !strings.Contains(spec, ":") {
		return "", spec, nil
	}
	host, port, err = net.SplitHostPort(spec)
	if err != nil {
		return "", "", fmt.Errorf("invalid listen spec %q: %w", spec, err)
	}
	return host, port, nil
}

// Listen resolves spec and opens one listener per resolved address. The spec
// is considered started when at least one address bound; per-address failures
// are logged. With no bindable address an error is returned.
func Listen(spec string, d *dispatch.Dispatch, factory ConnectionFactory, log logrus.FieldLogger) ([]*Listener, error) {
	host, port, err := ParseListenSpec(spec)
	if err != nil {
		return nil, err
	}

	addrs, err := resolveListenAddrs(host)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", spec, err)
	}

	var listeners []*Listener
	for _, addr := range addrs {
		full := net.JoinHostPort(addr, port)
		ln, err := net.Listen("tcp", full)
		if err != nil {
			if log != nil {
				log.WithError(err).Warnf("could not listen on %s", full)
			}
			continue
		}
		if log != nil {
			log.Infof("listening for connections on %s", ln.Addr())
		}
		listeners = append(listeners, &Listener{ln: ln, d: d, factory: factory, log: log})
	}

	if len(listeners) == 0 {
		return nil, fmt.Errorf("no available listening addresses for %q", spec)
	}
	return listeners, nil
}

func resolveListenAddrs(host string) ([]string, error) {
	if host == "" {
		// Wildcard: one listener per address family, matching a passive
		// resolver lookup.
		return []string{"0.0.0.0", "::"}, nil
	}
	ips, err := net.LookupHost(host)
	if err != nil {
		return nil, err
	}
	return ips, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve accepts connections until the context is cancelled or the listener
// fails. Each accepted connection registers itself with the dispatch hub and
// manages its own teardown.
func (l *Listener) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() == nil && l.log != nil {
				l.log.WithError(err).Warn("accept failed")
			}
			return
		}
		l.factory(conn, l.d, l.log)
	}
}

// Close shuts the listener down without waiting for Serve to notice.
func (l *Listener) Close() error {
	return l.ln.Close()
}

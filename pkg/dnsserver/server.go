package dnsserver

import (
	"context"
	"errors"
	"net"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// Server owns the UDP socket and dispatches each datagram to the
// handler. Queries are independent, so every datagram gets its own
// goroutine.
type Server struct {
	addr    string
	handler *Handler
	log     *logrus.Entry
}

func NewServer(addr string, handler *Handler) *Server {
	if addr == "" {
		addr = "0.0.0.0:53"
	}
	return &Server{
		addr:    addr,
		handler: handler,
		log:     logrus.WithField("component", "dns"),
	}
}

// ListenAndServe reads datagrams until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp4", s.addr)
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return err
	}

	s.log.WithField("addr", s.addr).Info("dns server listening")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		buf := make([]byte, dns.MaxMsgSize)
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("dns server stopped")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Errorf("udp read failed: %v", err)
			continue
		}

		go func(pkt []byte, remote *net.UDPAddr) {
			if resp := s.handler.HandlePacket(pkt); resp != nil {
				if _, err := conn.WriteToUDP(resp, remote); err != nil {
					s.log.Debugf("udp write to %v failed: %v", remote, err)
				}
			}
		}(buf[:n], remote)
	}
}

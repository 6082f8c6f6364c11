// Command tlsprobe opens a single TLS connection to a host:port using the
// tlsengine client engine and prints the negotiated stats, exercising
// Engine.Open end-to-end the way a real caller would.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	tlsengine "github.com/tlsengine/client"
	"github.com/tlsengine/client/store/memstore"
)

func main() {
	host := flag.String("host", "", "hostname to connect to (also used for SNI)")
	addr := flag.String("addr", "", "host:port to dial; defaults to host:443")
	alpn := flag.String("alpn", "h2,http/1.1", "comma-separated ALPN offering")
	timeout := flag.Duration("timeout", 5*time.Second, "connect timeout")
	insecure := flag.Bool("insecure", false, "disable certificate verification")
	flag.Parse()

	if *host == "" {
		fmt.Fprintln(os.Stderr, "tlsprobe: -host is required")
		os.Exit(2)
	}
	dialAddr := *addr
	if dialAddr == "" {
		dialAddr = net.JoinHostPort(*host, "443")
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg := tlsengine.NewConfig()
	cfg.ALPN = []string{*alpn}
	cfg.CheckCertificate = !*insecure
	cfg.TLSSessionCache = memstore.NewSessions()
	cfg.OCSPCertCache = memstore.NewOCSP()
	cfg.Logger = logger
	cfg.PrintInfo = true

	engine := tlsengine.New(cfg)
	if err := engine.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "tlsprobe: init:", err)
		os.Exit(1)
	}
	defer engine.Deinit()

	rawConn, err := net.DialTimeout("tcp", dialAddr, *timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tlsprobe: dial:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, err := engine.Open(ctx, rawConn, *host, *timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tlsprobe: open:", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("connected to %s\n", dialAddr)
	fmt.Printf("  alpn_protocol : %s\n", conn.Stats.ALPNProtocol)
	fmt.Printf("  tls_version   : %d\n", conn.Stats.TLSVersion)
	fmt.Printf("  resumed       : %v\n", conn.Stats.Resumed)
	fmt.Printf("  http_protocol : %s\n", conn.Stats.HTTPProtocol)
	fmt.Printf("  cert_chain    : %d certs\n", conn.Stats.CertChainSize)
	fmt.Printf("  hpkp          : %s\n", conn.Stats.HPKPStats)
}

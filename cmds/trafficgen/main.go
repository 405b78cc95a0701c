// Command trafficgen produces port scan traffic to exercise scanguard, either
// by connecting to a range of ports or by writing a synthetic capture file
// for "scanguard replay".
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/gopacket/layers"

	"github.com/safing/scanguard/base/log"
	"github.com/safing/scanguard/network/packet/packetgen"
)

var (
	target   string
	source   string
	ports    string
	pcapFile string
	waitMsec int
)

func init() {
	flag.StringVar(&target, "target", "", "address to scan, eg. 192.168.1.10")
	flag.StringVar(&source, "source", "10.0.0.5", "source address of synthetic frames")
	flag.StringVar(&ports, "ports", "20-40", "port range to scan")
	flag.StringVar(&pcapFile, "pcap", "", "write a synthetic capture file instead of connecting")
	flag.IntVar(&waitMsec, "w", 100, "how many ms to wait between ports")
}

func main() {
	os.Exit(run())
}

func run() int {
	// Parse flags
	flag.Parse()
	if target == "" {
		flag.Usage()
		return 1
	}
	first, last, err := parsePortRange(ports)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// Start logging.
	err = log.Start("info", true, "")
	if err != nil {
		fmt.Printf("failed to start logging: %s\n", err)
		return 1
	}
	defer log.Shutdown()

	wait := time.Duration(waitMsec) * time.Millisecond
	if pcapFile == "" {
		connectRange(first, last, wait)
		return 0
	}
	if err := writeCapture(pcapFile, first, last, wait); err != nil {
		log.Errorf("trafficgen: %s", err)
		return 1
	}
	return 0
}

func parsePortRange(s string) (first, last uint16, err error) {
	from, to, found := strings.Cut(s, "-")
	if !found {
		to = from
	}
	a, errA := strconv.ParseUint(from, 10, 16)
	b, errB := strconv.ParseUint(to, 10, 16)
	if err := errors.Join(errA, errB); err != nil {
		return 0, 0, fmt.Errorf("invalid port range %q: %w", s, err)
	}
	if a == 0 || a > b {
		return 0, 0, fmt.Errorf("invalid port range %q", s)
	}
	return uint16(a), uint16(b), nil
}

func connectRange(first, last uint16, wait time.Duration) {
	dialer := &net.Dialer{Timeout: 500 * time.Millisecond}
	for port := int(first); port <= int(last); port++ {
		addr := net.JoinHostPort(target, strconv.Itoa(port))
		start := time.Now()
		conn, err := dialer.DialContext(context.Background(), "tcp4", addr)
		if err != nil {
			log.Debugf("trafficgen: %s closed after %s: %s", addr, time.Since(start).Round(time.Millisecond), err)
		} else {
			log.Infof("trafficgen: %s open", addr)
			_ = conn.Close()
		}
		time.Sleep(wait)
	}
}

func writeCapture(path string, first, last uint16, wait time.Duration) error {
	src := net.ParseIP(source)
	dst := net.ParseIP(target)
	if src.To4() == nil || dst.To4() == nil {
		return errors.New("synthetic captures need IPv4 source and target addresses")
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	frames := make([]packetgen.Recorded, 0, int(last)-int(first)+1)
	ts := time.Now()
	for port := int(first); port <= int(last); port++ {
		frames = append(frames, packetgen.Recorded{
			Time:  ts,
			Frame: packetgen.TCPFrame{Src: src, Dst: dst, DstPort: uint16(port), SYN: true}.Ethernet(),
		})
		ts = ts.Add(wait)
	}
	if err := packetgen.WriteFrames(f, layers.LinkTypeEthernet, frames...); err != nil {
		return err
	}

	log.Infof("trafficgen: wrote %d frames to %s", len(frames), path)
	return f.Sync()
}

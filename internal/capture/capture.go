package capture

// Pcap transcript capture. Records crossing the wire are wrapped in a
// synthetic Ethernet/IPv4/TCP flow so the transcript opens directly in
// Wireshark with its TLS dissector.

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Synthetic flow endpoints. The server side keeps the real target port
// so dissectors pick the right protocol.
var (
	clientIP  = []byte{192, 168, 100, 10}
	serverIP  = []byte{192, 168, 100, 20}
	clientMAC = []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	serverMAC = []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Writer records a run's records into a pcap file. It implements the
// client Recorder hooks; each conversation gets its own synthetic flow
// via NextFlow.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	w    *pcapgo.Writer

	serverPort uint16
	clientPort uint16
	clientSeq  uint32
	serverSeq  uint32
}

// NewWriter creates a pcap transcript at path, targeting the given
// server port.
func NewWriter(path string, serverPort int) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap: %w", err)
	}
	w := pcapgo.NewWriter(file)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		file.Close()
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Writer{
		file:       file,
		w:          w,
		serverPort: uint16(serverPort),
		clientPort: 49999,
		clientSeq:  1,
		serverSeq:  1,
	}, nil
}

// NextFlow starts a new synthetic TCP flow for the next conversation.
func (c *Writer) NextFlow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientPort++
	c.clientSeq = 1
	c.serverSeq = 1
}

// RecordSend captures a client-to-server record.
func (c *Writer) RecordSend(data []byte) error {
	return c.record(data, false)
}

// RecordRecv captures a server-to-client record.
func (c *Writer) RecordRecv(data []byte) error {
	return c.record(data, true)
}

func (c *Writer) record(data []byte, fromServer bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	srcIP, dstIP := clientIP, serverIP
	srcMAC, dstMAC := clientMAC, serverMAC
	srcPort, dstPort := c.clientPort, c.serverPort
	seq, ack := c.clientSeq, c.serverSeq
	if fromServer {
		srcIP, dstIP = dstIP, srcIP
		srcMAC, dstMAC = dstMAC, srcMAC
		srcPort, dstPort = dstPort, srcPort
		seq, ack = c.serverSeq, c.clientSeq
	}

	ethernet := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		ACK:     true,
		PSH:     true,
		Seq:     seq,
		Ack:     ack,
	}
	_ = tcp.SetNetworkLayerForChecksum(ip)

	if fromServer {
		c.serverSeq += uint32(len(data))
	} else {
		c.clientSeq += uint32(len(data))
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	if err := gopacket.SerializeLayers(buffer, opts, ethernet, ip, tcp, gopacket.Payload(data)); err != nil {
		return fmt.Errorf("serialize packet: %w", err)
	}
	if err := c.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(buffer.Bytes()),
		Length:        len(buffer.Bytes()),
	}, buffer.Bytes()); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}
	return nil
}

// Close flushes and closes the pcap file.
func (c *Writer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}

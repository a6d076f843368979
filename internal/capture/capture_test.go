package capture

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.pcap")
	w, err := NewWriter(path, 4433)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	sent := []byte{0x16, 0x03, 0x01, 0x00, 0x02, 0xaa, 0xbb}
	recv := []byte{0x15, 0x03, 0x03, 0x00, 0x02, 0x02, 0x32}
	if err := w.RecordSend(sent); err != nil {
		t.Fatalf("RecordSend failed: %v", err)
	}
	if err := w.RecordRecv(recv); err != nil {
		t.Fatalf("RecordRecv failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open pcap: %v", err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		t.Fatalf("read pcap header: %v", err)
	}

	var payloads [][]byte
	var dstPorts []layers.TCPPort
	for {
		data, _, err := r.ReadPacketData()
		if err != nil {
			break
		}
		pkt := gopacket.NewPacket(data, layers.LinkTypeEthernet, gopacket.Default)
		tcpLayer := pkt.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil {
			t.Fatal("packet missing TCP layer")
		}
		tcp := tcpLayer.(*layers.TCP)
		payloads = append(payloads, tcp.Payload)
		dstPorts = append(dstPorts, tcp.DstPort)
	}

	if len(payloads) != 2 {
		t.Fatalf("got %d packets, want 2", len(payloads))
	}
	if !bytes.Equal(payloads[0], sent) {
		t.Errorf("first payload = %x, want %x", payloads[0], sent)
	}
	if !bytes.Equal(payloads[1], recv) {
		t.Errorf("second payload = %x, want %x", payloads[1], recv)
	}
	if dstPorts[0] != 4433 {
		t.Errorf("client packet dst port = %d, want 4433", dstPorts[0])
	}
	if dstPorts[1] == 4433 {
		t.Errorf("server packet should target the client port, got dst %d", dstPorts[1])
	}
}

func TestNextFlowChangesClientPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.pcap")
	w, err := NewWriter(path, 4433)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	if err := w.RecordSend([]byte{1}); err != nil {
		t.Fatal(err)
	}
	w.NextFlow()
	if err := w.RecordSend([]byte{2}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	r, err := pcapgo.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}

	var srcPorts []layers.TCPPort
	for {
		data, _, err := r.ReadPacketData()
		if err != nil {
			break
		}
		pkt := gopacket.NewPacket(data, layers.LinkTypeEthernet, gopacket.Default)
		tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
		srcPorts = append(srcPorts, tcp.SrcPort)
	}

	if len(srcPorts) != 2 {
		t.Fatalf("got %d packets, want 2", len(srcPorts))
	}
	if srcPorts[0] == srcPorts[1] {
		t.Errorf("NextFlow should change the client port, both packets used %d", srcPorts[0])
	}
}

package ucilog

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/uwb.hal/internal/fsutil"
	"github.com/banshee-data/uwb.hal/internal/uci"
)

// LinkTypeUCI tags pcap records as raw UCI control fragments. The registered
// FiRa UCI link type (299) does not fit gopacket's 8-bit LinkType, so the
// files use LINKTYPE_USER0.
const LinkTypeUCI = layers.LinkType(147)

const (
	pcapSnapLen      = 65535
	pcapFileHeader   = 24
	pcapRecordHeader = 16
	defaultPcapName  = "uci.pcap"
)

// PcapSink writes every entry as its on-wire fragments to a pcap file,
// rotating by size. The current file is Dir/uci.pcap; older files are
// uci.pcap.1 (newest) through uci.pcap.N-1.
type PcapSink struct {
	fs       fsutil.FileSystem
	dir      string
	maxBytes int64
	maxFiles int

	mu   sync.Mutex
	w    io.WriteCloser
	pw   *pcapgo.Writer
	size int64
}

// NewPcapSink returns a sink writing under dir. maxBytes <= 0 disables size
// rotation; maxFiles is the total number of files kept, including the
// current one.
func NewPcapSink(fs fsutil.FileSystem, dir string, maxBytes int64, maxFiles int) *PcapSink {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if maxFiles < 1 {
		maxFiles = 1
	}
	return &PcapSink{fs: fs, dir: dir, maxBytes: maxBytes, maxFiles: maxFiles}
}

// Path returns the path of the current file.
func (s *PcapSink) Path() string { return s.name(0) }

func (s *PcapSink) name(i int) string {
	p := filepath.Join(s.dir, defaultPcapName)
	if i == 0 {
		return p
	}
	return fmt.Sprintf("%s.%d", p, i)
}

// Record writes e as the fragments it occupies on the wire. Inbound packets
// are re-fragmented at the maximum fragment payload.
func (s *PcapSink) Record(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	frags := e.Packet().Fragments(uci.MaxPayloadSize)
	need := int64(0)
	for _, f := range frags {
		need += pcapRecordHeader + int64(len(f))
	}

	if s.w != nil && s.maxBytes > 0 && s.size > pcapFileHeader && s.size+need > s.maxBytes {
		if err := s.closeLocked(); err != nil {
			opsf("close %s for rotation: %v", s.Path(), err)
		}
	}
	if s.w == nil {
		if err := s.openLocked(); err != nil {
			return err
		}
	}

	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	for _, f := range frags {
		ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(f), Length: len(f)}
		if err := s.pw.WritePacket(ci, f); err != nil {
			return fmt.Errorf("write pcap record: %w", err)
		}
		s.size += pcapRecordHeader + int64(len(f))
	}
	return nil
}

// Close closes the current file. The next Record starts a new one.
func (s *PcapSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	return s.closeLocked()
}

func (s *PcapSink) closeLocked() error {
	err := s.w.Close()
	s.w, s.pw, s.size = nil, nil, 0
	return err
}

// openLocked shifts existing files down one slot and starts a fresh current
// file.
func (s *PcapSink) openLocked() error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	if s.fs.Exists(s.name(0)) {
		if err := s.shiftLocked(); err != nil {
			return err
		}
	}

	w, err := s.fs.Create(s.name(0))
	if err != nil {
		return fmt.Errorf("create %s: %w", s.name(0), err)
	}
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(pcapSnapLen, LinkTypeUCI); err != nil {
		w.Close()
		return fmt.Errorf("write pcap header: %w", err)
	}
	s.w, s.pw, s.size = w, pw, pcapFileHeader
	diagf("opened %s", s.name(0))
	return nil
}

func (s *PcapSink) shiftLocked() error {
	oldest := s.name(s.maxFiles - 1)
	if s.fs.Exists(oldest) {
		if err := s.fs.Remove(oldest); err != nil {
			return fmt.Errorf("remove %s: %w", oldest, err)
		}
	}
	for i := s.maxFiles - 1; i >= 1; i-- {
		src := s.name(i - 1)
		if !s.fs.Exists(src) {
			continue
		}
		if err := s.fs.Rename(src, s.name(i)); err != nil {
			return fmt.Errorf("rotate %s: %w", src, err)
		}
	}
	return nil
}

// ReadPcap calls fn for every fragment in a file written by PcapSink, in
// file order. It stops at the first error fn returns.
func ReadPcap(r io.Reader, fn func(ts time.Time, fragment []byte) error) error {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return fmt.Errorf("read pcap header: %w", err)
	}
	if lt := pr.LinkType(); lt != LinkTypeUCI {
		return fmt.Errorf("pcap link type %d is not UCI (%d)", lt, LinkTypeUCI)
	}
	for {
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read pcap record: %w", err)
		}
		if err := fn(ci.Timestamp, data); err != nil {
			return err
		}
	}
}

// Package pcap turns offline packet captures into univariate series.
package pcap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Metric names a per-capture series.
type Metric string

const (
	MetricPacketSize       Metric = "packet_size"
	MetricPayloadSize      Metric = "payload_size"
	MetricInterArrivalTime Metric = "inter_arrival_time"
	MetricIPTTL            Metric = "ip_ttl"
	// MetricPacketRate counts packets per bucket interval.
	MetricPacketRate Metric = "packet_rate"
)

// ErrUnknownMetric is returned for a metric the extractor does not produce.
var ErrUnknownMetric = errors.New("unknown metric")

// Reader reads packets from a pcap stream.
type Reader struct {
	closer    io.Closer
	source    *pcapgo.Reader
	extractor *FeatureExtractor
	metric    Metric
	bucket    time.Duration
}

// Option configures a Reader.
type Option func(*Reader)

// WithMetric selects the series extracted from each packet.
func WithMetric(m Metric) Option {
	return func(r *Reader) {
		r.metric = m
	}
}

// WithBucket sets the interval used by MetricPacketRate.
func WithBucket(d time.Duration) Option {
	return func(r *Reader) {
		r.bucket = d
	}
}

// NewFileReader creates a reader for pcap files.
func NewFileReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	r, err := newReader(file, file, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// NewReaderFrom creates a reader over a pcap stream.
func NewReaderFrom(src io.Reader, opts ...Option) (*Reader, error) {
	return newReader(src, nil, opts...)
}

func newReader(src io.Reader, closer io.Closer, opts ...Option) (*Reader, error) {
	r := &Reader{
		closer:    closer,
		extractor: NewFeatureExtractor(),
		metric:    MetricPacketSize,
		bucket:    time.Second,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.metric != MetricPacketRate && r.extractor.featureIndex(r.metric) < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, r.metric)
	}
	if r.metric == MetricPacketRate && r.bucket <= 0 {
		return nil, fmt.Errorf("bucket must be > 0, got %s", r.bucket)
	}

	source, err := pcapgo.NewReader(src)
	if err != nil {
		return nil, err
	}
	r.source = source

	return r, nil
}

// Read returns all packets as feature vectors.
func (r *Reader) Read() ([][]float64, error) {
	var data [][]float64

	packetSource := gopacket.NewPacketSource(r.source, r.source.LinkType())
	for packet := range packetSource.Packets() {
		data = append(data, r.extractor.Extract(packet))
	}

	return data, nil
}

// ReadSeries returns the configured metric as a series.
func (r *Reader) ReadSeries() ([]float64, error) {
	if r.metric == MetricPacketRate {
		return r.readRate()
	}

	idx := r.extractor.featureIndex(r.metric)
	rows, err := r.Read()
	if err != nil {
		return nil, err
	}

	series := make([]float64, len(rows))
	for i, row := range rows {
		series[i] = row[idx]
	}
	return series, nil
}

// readRate buckets packet timestamps relative to the first packet.
// Buckets without packets count zero.
func (r *Reader) readRate() ([]float64, error) {
	var (
		series []float64
		start  time.Time
	)

	packetSource := gopacket.NewPacketSource(r.source, r.source.LinkType())
	for packet := range packetSource.Packets() {
		ts := packet.Metadata().Timestamp
		if start.IsZero() {
			start = ts
		}
		if ts.Before(start) {
			continue
		}

		b := int(ts.Sub(start) / r.bucket)
		for len(series) <= b {
			series = append(series, 0)
		}
		series[b]++
	}

	return series, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// FeatureExtractor extracts numerical features from network packets.
type FeatureExtractor struct {
	lastTimestamp time.Time
}

// NewFeatureExtractor creates a new packet feature extractor.
func NewFeatureExtractor() *FeatureExtractor {
	return &FeatureExtractor{}
}

// Extract converts a packet to a feature vector ordered as FeatureNames.
func (e *FeatureExtractor) Extract(packet gopacket.Packet) []float64 {
	features := make([]float64, 8)

	features[0] = float64(len(packet.Data()))

	metadata := packet.Metadata()
	if metadata != nil && !metadata.Timestamp.IsZero() {
		if !e.lastTimestamp.IsZero() {
			features[1] = metadata.Timestamp.Sub(e.lastTimestamp).Seconds()
		}
		e.lastTimestamp = metadata.Timestamp
	}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		features[2] = 6 // TCP
		tcp := tcpLayer.(*layers.TCP)
		features[3] = float64(tcp.SrcPort)
		features[4] = float64(tcp.DstPort)
		features[5] = encodeTCPFlags(tcp)
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		features[2] = 17 // UDP
		udp := udpLayer.(*layers.UDP)
		features[3] = float64(udp.SrcPort)
		features[4] = float64(udp.DstPort)
	} else if packet.Layer(layers.LayerTypeICMPv4) != nil {
		features[2] = 1 // ICMP
	}

	if ipLayer := packet.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		features[6] = float64(ipLayer.(*layers.IPv4).TTL)
	}

	if appLayer := packet.ApplicationLayer(); appLayer != nil {
		features[7] = float64(len(appLayer.Payload()))
	}

	return features
}

// FeatureNames returns the names of extracted features.
func (e *FeatureExtractor) FeatureNames() []string {
	return []string{
		string(MetricPacketSize),
		string(MetricInterArrivalTime),
		"protocol",
		"src_port",
		"dst_port",
		"tcp_flags",
		string(MetricIPTTL),
		string(MetricPayloadSize),
	}
}

func (e *FeatureExtractor) featureIndex(m Metric) int {
	for i, name := range e.FeatureNames() {
		if name == string(m) {
			return i
		}
	}
	return -1
}

// encodeTCPFlags converts TCP flags to a numeric value.
func encodeTCPFlags(tcp *layers.TCP) float64 {
	var flags float64
	if tcp.SYN {
		flags += 1
	}
	if tcp.ACK {
		flags += 2
	}
	if tcp.FIN {
		flags += 4
	}
	if tcp.RST {
		flags += 8
	}
	if tcp.PSH {
		flags += 16
	}
	if tcp.URG {
		flags += 32
	}
	return flags
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"firestige.xyz/tcpflow/reassembly"
)

// streamWriter receives the engine callbacks and writes each direction of
// each connection to its own file under the output directory.
type streamWriter struct {
	dir     string
	logger  logrus.FieldLogger
	files   map[uint32][2]*os.File
	entries map[uint32]*reportEntry
}

type reportEntry struct {
	Connection string    `yaml:"connection"`
	FlowKey    uint32    `yaml:"flow_key"`
	Start      time.Time `yaml:"start"`
	End        time.Time `yaml:"end"`
	Reason     string    `yaml:"close_reason"`
	SideBytes  [2]int64  `yaml:"side_bytes"`
}

type runReport struct {
	Packets     int            `yaml:"packets"`
	Connections []*reportEntry `yaml:"connections"`
}

func newStreamWriter(dir string, logger logrus.FieldLogger) (*streamWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &streamWriter{
		dir:     dir,
		logger:  logger,
		files:   make(map[uint32][2]*os.File),
		entries: make(map[uint32]*reportEntry),
	}, nil
}

func (w *streamWriter) onConnectionStart(conn reassembly.ConnectionData, _ any) {
	w.logger.WithField("conn", conn.String()).Info("connection started")
	w.entries[conn.FlowKey] = &reportEntry{
		Connection: conn.String(),
		FlowKey:    conn.FlowKey,
		Start:      conn.StartTime,
	}
}

func (w *streamWriter) onMessage(side int, data reassembly.StreamData, _ any) {
	conn := data.Connection
	files, ok := w.files[conn.FlowKey]
	if !ok {
		for i := 0; i < 2; i++ {
			name := fmt.Sprintf("%s.side%d.stream", conn.String(), i)
			f, err := os.Create(filepath.Join(w.dir, name))
			if err != nil {
				w.logger.WithError(err).Error("failed to create stream file")
				return
			}
			files[i] = f
		}
		w.files[conn.FlowKey] = files
	}

	if _, err := files[side].Write(data.Data); err != nil {
		w.logger.WithError(err).Error("failed to write stream data")
		return
	}
	if entry, ok := w.entries[conn.FlowKey]; ok {
		entry.SideBytes[side] += int64(len(data.Data))
	}
}

func (w *streamWriter) onConnectionEnd(conn reassembly.ConnectionData, reason reassembly.ConnectionEndReason, _ any) {
	w.logger.WithFields(logrus.Fields{
		"conn":   conn.String(),
		"reason": reason.String(),
	}).Info("connection ended")

	if entry, ok := w.entries[conn.FlowKey]; ok {
		entry.End = conn.EndTime
		entry.Reason = reason.String()
	}
	if files, ok := w.files[conn.FlowKey]; ok {
		for _, f := range files {
			f.Close()
		}
		delete(w.files, conn.FlowKey)
	}
}

func (w *streamWriter) closeAll() {
	for _, files := range w.files {
		for _, f := range files {
			f.Close()
		}
	}
}

// writeReport marshals the per-connection summary to a YAML file.
func (w *streamWriter) writeReport(path string, packets int) error {
	report := runReport{Packets: packets}
	for _, entry := range w.entries {
		report.Connections = append(report.Connections, entry)
	}
	sort.Slice(report.Connections, func(i, j int) bool {
		return report.Connections[i].Start.Before(report.Connections[j].Start)
	})

	data, err := yaml.Marshal(&report)
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run report %s: %w", path, err)
	}
	return nil
}

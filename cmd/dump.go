package cmd

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/spf13/cobra"

	"firestige.xyz/tcpflow/internal/config"
	"firestige.xyz/tcpflow/internal/log"
	"firestige.xyz/tcpflow/reassembly"
)

var (
	dumpFile  string
	dumpIface string
	dumpBPF   string
	dumpOut   string
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Reassemble TCP streams from a pcap file or live interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		applyDumpFlags(cfg)

		if err := log.Init(cfg.Log); err != nil {
			return err
		}
		return runDump(cfg)
	},
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpFile, "file", "f", "", "pcap file to read")
	dumpCmd.Flags().StringVarP(&dumpIface, "iface", "i", "", "interface to capture from")
	dumpCmd.Flags().StringVar(&dumpBPF, "bpf", "", "BPF filter expression")
	dumpCmd.Flags().StringVarP(&dumpOut, "out", "o", "", "output directory for stream files")
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.Default(), nil
	}
	return config.Load(configFile)
}

func applyDumpFlags(cfg *config.Config) {
	if dumpFile != "" {
		cfg.Capture.File = dumpFile
	}
	if dumpIface != "" {
		cfg.Capture.Interface = dumpIface
	}
	if dumpBPF != "" {
		cfg.Capture.BPF = dumpBPF
	}
	if dumpOut != "" {
		cfg.Output.Dir = dumpOut
	}
}

func runDump(cfg *config.Config) error {
	logger := log.GetLogger()

	handle, err := openHandle(cfg.Capture)
	if err != nil {
		return err
	}
	defer handle.Close()

	if cfg.Capture.BPF != "" {
		if err := handle.SetBPFFilter(cfg.Capture.BPF); err != nil {
			return fmt.Errorf("failed to set BPF filter %q: %w", cfg.Capture.BPF, err)
		}
	}

	writer, err := newStreamWriter(cfg.Output.Dir, logger)
	if err != nil {
		return err
	}
	defer writer.closeAll()

	engine, err := reassembly.New(reassembly.Config{
		OnMessageReady:        writer.onMessage,
		OnConnectionStart:     writer.onConnectionStart,
		OnConnectionEnd:       writer.onConnectionEnd,
		Logger:                logger,
		KeepConnInfo:          cfg.Reassembly.KeepConnInfo,
		ClosedConnectionDelay: time.Duration(cfg.Reassembly.ClosedConnectionDelaySec) * time.Second,
		MaxNumToClean:         cfg.Reassembly.MaxNumToClean,
	})
	if err != nil {
		return err
	}

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	packets := 0
	for packet := range source.Packets() {
		engine.ReassemblePacket(packet)
		packets++
	}
	engine.CloseAllConnections()

	logger.WithField("packets", packets).Info("capture drained")

	return writer.writeReport(cfg.Output.Report, packets)
}

func openHandle(cc config.CaptureConfig) (*pcap.Handle, error) {
	switch {
	case cc.File != "":
		handle, err := pcap.OpenOffline(cc.File)
		if err != nil {
			return nil, fmt.Errorf("failed to open pcap file %s: %w", cc.File, err)
		}
		return handle, nil
	case cc.Interface != "":
		handle, err := pcap.OpenLive(cc.Interface, int32(cc.SnapLen), cc.Promiscuous, pcap.BlockForever)
		if err != nil {
			return nil, fmt.Errorf("failed to open interface %s: %w", cc.Interface, err)
		}
		return handle, nil
	default:
		return nil, fmt.Errorf("either a pcap file (-f) or an interface (-i) is required")
	}
}

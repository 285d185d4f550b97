package main

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/open-source-firmware/go-ata-passthrough/pkg/drive"
)

var (
	mDriveInfo = prometheus.NewDesc(
		"ata_passthrough_drive_info",
		"Info metric regarding the drives commands were issued to",
		[]string{"device", "model", "serial", "firmware", "protocol"}, nil,
	)
	mQueueDepth = prometheus.NewDesc(
		"ata_passthrough_drive_queue_depth",
		"NCQ queue depth reported by IDENTIFY DEVICE, 0 when NCQ is not supported",
		[]string{"device"}, nil,
	)
)

type driveState struct {
	Device   string
	Identity *drive.Identity
}

// driveCollector reports the identity of every drive opened during the run.
type driveCollector struct {
	state []driveState
}

func (dc *driveCollector) add(device string, id *drive.Identity) {
	dc.state = append(dc.state, driveState{Device: device, Identity: id})
}

func (dc *driveCollector) Collect(c chan<- prometheus.Metric) {
	for _, s := range dc.state {
		c <- prometheus.MustNewConstMetric(mDriveInfo, prometheus.GaugeValue, 1,
			s.Device, s.Identity.Model, s.Identity.SerialNumber, s.Identity.Firmware, s.Identity.Protocol)
		if s.Identity.Protocol != "SATA" {
			continue
		}
		depth := float64(0)
		if s.Identity.NCQ {
			depth = float64(s.Identity.QueueDepth)
		}
		c <- prometheus.MustNewConstMetric(mQueueDepth, prometheus.GaugeValue, depth, s.Device)
	}
}

func (dc *driveCollector) Describe(c chan<- *prometheus.Desc) {
	c <- mDriveInfo
	c <- mQueueDepth
}

func outputMetrics(reg *prometheus.Registry, drives *driveCollector, w io.Writer) error {
	if err := reg.Register(drives); err != nil {
		return fmt.Errorf("failed to register drive metrics: %v", err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to serialize metrics: %v", err)
		}
	}
	return nil
}
